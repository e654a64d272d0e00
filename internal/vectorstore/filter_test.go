package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	payload := map[string]interface{}{
		"user_id":  "u1",
		"agent_id": "coder",
		"success":  true,
		"attempts": int64(3),
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{
			name:   "nil filter matches everything",
			filter: nil,
			want:   true,
		},
		{
			name:   "equality match",
			filter: NewFilterBuilder().Eq("user_id", "u1").Build(),
			want:   true,
		},
		{
			name:   "equality mismatch",
			filter: NewFilterBuilder().Eq("user_id", "u2").Build(),
			want:   false,
		},
		{
			name:   "missing field fails",
			filter: NewFilterBuilder().Eq("absent", "x").Build(),
			want:   false,
		},
		{
			name:   "bool equality",
			filter: NewFilterBuilder().Eq("success", true).Build(),
			want:   true,
		},
		{
			name:   "numeric type drift tolerated",
			filter: NewFilterBuilder().Eq("attempts", 3).Build(),
			want:   true,
		},
		{
			name:   "any-of match",
			filter: NewFilterBuilder().In("agent_id", "coder", "reviewer").Build(),
			want:   true,
		},
		{
			name:   "any-of miss",
			filter: NewFilterBuilder().In("agent_id", "planner", "reviewer").Build(),
			want:   false,
		},
		{
			name: "all conditions required",
			filter: NewFilterBuilder().
				Eq("user_id", "u1").
				In("agent_id", "planner").
				Build(),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(payload))
		})
	}
}

func TestFilterBuilderEmpty(t *testing.T) {
	assert.Nil(t, NewFilterBuilder().Build())
	assert.True(t, NewFilterBuilder().Build().IsEmpty())
}
