package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestEncode_InjectsMessageType(t *testing.T) {
	encoded, err := Encode(&JoinLobby{LobbyCode: "ABC234", Username: "alice"}, 0)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}

	expected := `{"messageType":"JoinLobby","lobbyCode":"ABC234","username":"alice"}`
	if string(encoded) != expected {
		t.Errorf("expected %s, got %s", expected, encoded)
	}
}

func TestEncode_EmptyMessage(t *testing.T) {
	encoded, err := Encode(&QuitLobby{}, 0)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	if string(encoded) != `{"messageType":"QuitLobby"}` {
		t.Errorf("unexpected encoding %s", encoded)
	}
}

func TestEncode_Compression(t *testing.T) {
	msg := &LobbyList{}
	for i := 0; i < 50; i++ {
		msg.Lobbies = append(msg.Lobbies, LobbyView{Code: "ABCDEF", Name: "a rather long lobby name"})
	}

	compressed, err := Encode(msg, 64)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	if !bytes.HasPrefix(compressed, gzipMagic) {
		t.Fatalf("expected message above the threshold to be compressed")
	}

	plain, err := Encode(msg, 0)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	if len(compressed) >= len(plain) {
		t.Errorf("compressed message is not smaller: %d >= %d", len(compressed), len(plain))
	}

	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress() returned an unexpected error: %v", err)
	}
	if !bytes.Equal(decompressed, plain) {
		t.Errorf("decompressed message did not match the uncompressed encoding")
	}
}

func TestDecompress_PassesThroughPlainMessages(t *testing.T) {
	data := []byte(`{"messageType":"QuitLobby"}`)
	got, err := Decompress(data)
	if err != nil {
		t.Fatalf("Decompress() returned an unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("expected %s, got %s", data, got)
	}
}

func TestDecompress_CorruptStream(t *testing.T) {
	_, err := Decompress([]byte{0x1f, 0x8b, 0x00, 0x01})
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodeType(t *testing.T) {
	tests := map[string]struct {
		data    string
		want    string
		wantErr bool
	}{
		"valid message":         {data: `{"messageType":"JoinLobby","username":"bob"}`, want: "JoinLobby"},
		"missing messageType":   {data: `{"username":"bob"}`, wantErr: true},
		"numeric messageType":   {data: `{"messageType":42}`, wantErr: true},
		"empty messageType":     {data: `{"messageType":""}`, wantErr: true},
		"null messageType":      {data: `{"messageType":null}`, wantErr: true},
		"array instead of body": {data: `[1,2,3]`, wantErr: true},
		"not json":              {data: `hello`, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeType([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeType() wantErr = %v, error = %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	position := Vector3{X: 1, Y: 2, Z: 3}
	color := Color(0x12ABEF)
	actions := []string{"jump", "shoot"}
	sent := &ServerTick{
		Entities: []EntityDelta{{
			GUID:     uuid.New(),
			Color:    &color,
			Position: &position,
			Actions:  &actions,
		}},
		RemovedEntities: []uuid.UUID{uuid.New()},
		GameTime:        12.5,
	}

	encoded, err := Encode(sent, 0)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	messageType, err := DecodeType(encoded)
	if err != nil {
		t.Fatalf("DecodeType() returned an unexpected error: %v", err)
	}
	if messageType != TypeNameOf[ServerTick]() {
		t.Fatalf("expected messageType ServerTick, got %s", messageType)
	}

	received := &ServerTick{}
	if err := DecodeInto(encoded, received); err != nil {
		t.Fatalf("DecodeInto() returned an unexpected error: %v", err)
	}
	if diff := cmp.Diff(sent, received); diff != "" {
		t.Errorf("decoded message did not match expected; diff:\n%s", diff)
	}
}

func TestColor_JSON(t *testing.T) {
	encoded, err := json.Marshal(Color(0x0A0B0C))
	if err != nil {
		t.Fatalf("Marshal() returned an unexpected error: %v", err)
	}
	if string(encoded) != `"0A0B0C"` {
		t.Errorf("expected \"0A0B0C\", got %s", encoded)
	}

	tests := map[string]struct {
		data    string
		want    Color
		wantErr bool
	}{
		"upper case":   {data: `"FFAA00"`, want: 0xFFAA00},
		"lower case":   {data: `"ffaa00"`, want: 0xFFAA00},
		"hash prefix":  {data: `"#00FF00"`, want: 0x00FF00},
		"short":        {data: `"FFF"`, wantErr: true},
		"not hex":      {data: `"GGGGGG"`, wantErr: true},
		"not a string": {data: `16777215`, wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var c Color
			err := json.Unmarshal([]byte(tt.data), &c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() wantErr = %v, error = %v", tt.wantErr, err)
			}
			if c != tt.want {
				t.Errorf("expected %s, got %s", tt.want, c)
			}
		})
	}
}

func TestEntityDelta_OmitsAbsentFields(t *testing.T) {
	guid := uuid.MustParse("3f0c8a3e-4c4f-4b0e-9a4e-1f1e8f4c2d10")
	encoded, err := json.Marshal(&EntityDelta{GUID: guid})
	if err != nil {
		t.Fatalf("Marshal() returned an unexpected error: %v", err)
	}

	expected := `{"guid":"3f0c8a3e-4c4f-4b0e-9a4e-1f1e8f4c2d10"}`
	if string(encoded) != expected {
		t.Errorf("expected %s, got %s", expected, encoded)
	}
	if !(&EntityDelta{GUID: guid}).IsEmpty() {
		t.Errorf("expected delta without fields to be empty")
	}
}

func TestError_IsFatalOmittedWhenFalse(t *testing.T) {
	encoded, err := Encode(NewError(ErrorMalformedMessage, "bad"), 0)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	if strings.Contains(string(encoded), "isFatal") {
		t.Errorf("expected isFatal to be omitted, got %s", encoded)
	}
}
