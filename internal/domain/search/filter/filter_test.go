package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestNewRangeFilter(t *testing.T) {
	tests := []struct {
		name             string
		gt, gte, lt, lte *float64
		wantErr          string
	}{
		{"gte only", nil, floatPtr(0), nil, nil, ""},
		{"gt+lte", floatPtr(0), nil, nil, floatPtr(10), ""},
		{"none", nil, nil, nil, nil, "at least one"},
		{"gt and gte", floatPtr(1), floatPtr(1), nil, nil, "gt and gte"},
		{"lt and lte", nil, nil, floatPtr(1), floatPtr(1), "lt and lte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRangeFilter(tt.gt, tt.gte, tt.lt, tt.lte)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewMatch(t *testing.T) {
	c, err := NewMatch("betreiber_id", "ABR900000000001")
	require.NoError(t, err)
	assert.True(t, c.IsMatch())
	assert.False(t, c.IsRange())

	_, err = NewMatch("", "x")
	assert.ErrorContains(t, err, "key is required")
	_, err = NewMatch("betreiber_id", "")
	assert.ErrorContains(t, err, "match value")
}

func TestNewExpression_GroupLimits(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup+1)
	for i := range conds {
		conds[i] = Condition{key: "k", match: "v"}
	}

	_, err := NewExpression(conds, nil, nil)
	assert.ErrorContains(t, err, "too many must conditions")
	_, err = NewExpression(nil, nil, conds)
	assert.ErrorContains(t, err, "too many must_not conditions")

	expr, err := NewExpression(conds[:MaxConditionsPerGroup], nil, nil)
	require.NoError(t, err)
	assert.False(t, expr.IsEmpty())
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("bundesland=Bayern")
	require.NoError(t, err)
	assert.Equal(t, "bundesland", c.Key())
	assert.Equal(t, "Bayern", c.Match())

	c, err = ParseCondition("installierte_leistung >= 9.5")
	require.NoError(t, err)
	require.True(t, c.IsRange())
	require.NotNil(t, c.Range().GTE())
	assert.Equal(t, 9.5, *c.Range().GTE())

	c, err = ParseCondition("registrierungsdatum<1600000000")
	require.NoError(t, err)
	require.NotNil(t, c.Range().LT())

	_, err = ParseCondition("installierte_leistung>viel")
	assert.ErrorContains(t, err, "not a number")

	_, err = ParseCondition("just-a-word")
	assert.Error(t, err)
}

func TestParseAll_MergesRangesOnSameKey(t *testing.T) {
	expr, err := ParseAll([]string{"installierte_leistung>=10", "installierte_leistung<100", "ort=Kiel"})
	require.NoError(t, err)
	require.Len(t, expr.Must(), 2)

	r := expr.Must()[0].Range()
	require.NotNil(t, r)
	assert.Equal(t, 10.0, *r.GTE())
	assert.Equal(t, 100.0, *r.LT())

	_, err = ParseAll([]string{"x>1", "x>=2"})
	assert.Error(t, err)
}

func TestParseAll_Empty(t *testing.T) {
	expr, err := ParseAll(nil)
	require.NoError(t, err)
	assert.True(t, expr.IsEmpty())
}
