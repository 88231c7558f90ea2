package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestWrapPQError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{name: "一意制約違反", err: &pq.Error{Code: "23505", Message: "duplicate key"}, wantConflict: true},
		{name: "シリアライゼーション失敗", err: &pq.Error{Code: "40001"}, wantConflict: true},
		{name: "デッドロック", err: &pq.Error{Code: "40P01"}, wantConflict: true},
		{name: "NOT NULL違反", err: &pq.Error{Code: "23502"}, wantConflict: false},
		{name: "pq以外のエラー", err: errors.New("connection refused"), wantConflict: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapPQError("op", tt.err)
			if errors.Is(got, ErrConflict) != tt.wantConflict {
				t.Errorf("errors.Is(ErrConflict) = %v, want %v (err=%v)", !tt.wantConflict, tt.wantConflict, got)
			}
			if !errors.Is(got, tt.err) && !tt.wantConflict {
				t.Errorf("元のエラーがラップされているべき: %v", got)
			}
		})
	}
}
