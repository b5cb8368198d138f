package game

import "testing"

func TestParseClientEvent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
		wantErr  bool
	}{
		{"tap event", `{"type":"tap","match_id":"m-1","client_ts":1700000000000}`, EvtTap, false},
		{"challenge event", `{"type":"send_challenge","target_id":7}`, EvtSendChallenge, false},
		{"unknown fields tolerated", `{"type":"join_queue","extra":"ignored"}`, EvtJoinQueue, false},
		{"missing type", `{"target_id":7}`, "", true},
		{"not json", `tap`, "", true},
		{"empty frame", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := ParseClientEvent([]byte(tt.payload))
			if tt.wantErr {
				ge, ok := AsGameError(err)
				if !ok || ge.Code != CodeBadPayload {
					t.Errorf("error = %v, want code %s", err, CodeBadPayload)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if evt.Type != tt.wantType {
				t.Errorf("type = %s, want %s", evt.Type, tt.wantType)
			}
		})
	}
}
