package peerlink

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Zereker/peerlink/provider"
)

func TestTypeDescriptor(t *testing.T) {
	const pkg = "github.com/Zereker/peerlink."

	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"struct", reflect.TypeFor[Ping](), pkg + "Ping"},
		{"pointer", reflect.TypeFor[*Ping](), pkg + "Ping"},
		{"raw", reflect.TypeFor[Raw](), RawType},
		{"error reply", reflect.TypeFor[ErrorReply](), pkg + "ErrorReply"},
		{"generic", reflect.TypeFor[Value[int]](), pkg + "Value[int]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeDescriptor(tt.typ); got != tt.want {
				t.Errorf("TypeDescriptor() = %q, want %q", got, tt.want)
			}
		})
	}

	if !strings.HasPrefix(TypeDescriptor(reflect.TypeFor[Value[Ping]]()), pkg+"Value[") {
		t.Error("nested generic descriptor lost its base name")
	}
}

func TestPayloadKinds(t *testing.T) {
	tests := []struct {
		payload Payload
		want    Kind
	}{
		{Ping{}, KindNotification},
		{Raw{}, KindNotification},
		{Add{}, KindQuery},
		{Sum{}, KindReply},
		{ErrorReply{}, KindReply},
	}

	for _, tt := range tests {
		if got := tt.payload.payloadKind(); got != tt.want {
			t.Errorf("%s kind = %s, want %s", DescriptorOf(tt.payload), got, tt.want)
		}
	}

	if got := (Add{}).replyType(); got != reflect.TypeFor[Sum]() {
		t.Errorf("Add reply type = %v, want Sum", got)
	}
	if Kind(7).String() != "Kind(7)" {
		t.Errorf("unexpected String for unknown kind: %s", Kind(7))
	}
}

func TestPayloadCodec(t *testing.T) {
	for _, s := range []provider.Serializer{provider.JSON{}, provider.CBOR{}} {
		data, err := encodePayload(s, Add{A: 4, B: 5})
		if err != nil {
			t.Fatalf("%T encode failed: %v", s, err)
		}

		p, err := decodePayload(s, reflect.TypeFor[Add](), data)
		if err != nil {
			t.Fatalf("%T decode failed: %v", s, err)
		}
		if add, ok := p.(Add); !ok || add.A != 4 || add.B != 5 {
			t.Errorf("%T decoded %#v", s, p)
		}

		p, err = decodePayload(s, reflect.TypeFor[*Add](), data)
		if err != nil {
			t.Fatalf("%T decode pointer failed: %v", s, err)
		}
		if add, ok := p.(*Add); !ok || add.A != 4 {
			t.Errorf("%T decoded pointer %#v", s, p)
		}
	}
}

func TestPayloadCodec_Raw(t *testing.T) {
	data, err := encodePayload(provider.JSON{}, Raw("not json"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(data) != "not json" {
		t.Errorf("raw bytes changed: %q", data)
	}

	p, err := decodePayload(provider.JSON{}, rawReflectType, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(p.(Raw)) != "not json" {
		t.Errorf("decoded %q", p)
	}
}

func TestPayloadCodec_Invalid(t *testing.T) {
	if _, err := decodePayload(provider.JSON{}, reflect.TypeFor[Add](), []byte("{")); err == nil {
		t.Error("expected decode error")
	}
}

func TestRemoteError(t *testing.T) {
	err := error(&RemoteError{Message: "boom", Source: "calc.Add"})
	if err.Error() != "remote calc.Add: boom" {
		t.Errorf("Error() = %q", err.Error())
	}

	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "boom" {
		t.Error("errors.As failed")
	}

	if got := (&RemoteError{Message: "boom"}).Error(); got != "remote: boom" {
		t.Errorf("Error() without source = %q", got)
	}
}
