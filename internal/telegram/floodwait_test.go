package telegram

import (
	"errors"
	"fmt"
	"testing"
)

func TestFloodWaitSeconds(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantSeconds int
		wantOK      bool
	}{
		{
			name:        "plain flood wait",
			err:         errors.New("rpc error code 420: FLOOD_WAIT_37"),
			wantSeconds: 37,
			wantOK:      true,
		},
		{
			name:        "wrapped flood wait",
			err:         fmt.Errorf("send message: %w", errors.New("FLOOD_WAIT_5 (caused by messages.SendMessage)")),
			wantSeconds: 5,
			wantOK:      true,
		},
		{
			name:   "unrelated error",
			err:    errors.New("PEER_ID_INVALID"),
			wantOK: false,
		},
		{
			name:   "flood wait without a number",
			err:    errors.New("FLOOD_WAIT_???"),
			wantOK: false,
		},
		{
			name:   "nil error",
			err:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seconds, ok := floodWaitSeconds(tt.err)
			if ok != tt.wantOK || seconds != tt.wantSeconds {
				t.Errorf("floodWaitSeconds(%v) = (%d, %v), want (%d, %v)",
					tt.err, seconds, ok, tt.wantSeconds, tt.wantOK)
			}
		})
	}
}
