package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	charge := strPtr("charge")
	cheap := strPtr("cheap")

	tests := []struct {
		name        string
		expect      *Expect
		action      *string
		description *string
		want        Status
	}{
		{"no expect", nil, charge, cheap, StatusPending},
		{"empty expect", &Expect{}, charge, cheap, StatusPending},
		{"success only", &Expect{Success: boolPtr(true)}, charge, cheap, StatusPending},
		{"action matches", &Expect{Action: charge}, charge, cheap, StatusPass},
		{"action differs", &Expect{Action: strPtr("export")}, charge, cheap, StatusFail},
		{"description matches", &Expect{Description: cheap}, charge, cheap, StatusPass},
		{"description differs", &Expect{Description: strPtr("spike")}, charge, cheap, StatusFail},
		{"both match", &Expect{Action: charge, Description: cheap}, charge, cheap, StatusPass},
		{"one of two differs", &Expect{Action: charge, Description: strPtr("spike")}, charge, cheap, StatusFail},
		{"both actuals null", &Expect{Action: charge}, nil, nil, StatusPending},
		{"null action, description set", &Expect{Action: charge}, nil, cheap, StatusPass},
		{"null description mismatching action", &Expect{Action: strPtr("export")}, charge, nil, StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.expect, tt.action, tt.description))
		})
	}
}

func TestExpectationErrors(t *testing.T) {
	errs := expectationErrors(
		&Expect{Action: strPtr("export"), Description: strPtr("cheap")},
		strPtr("charge"), strPtr("cheap"),
	)
	assert.Equal(t, []string{`action: expected "export", got "charge"`}, errs)

	assert.Empty(t, expectationErrors(nil, strPtr("charge"), nil))
}

func TestCounts_Add(t *testing.T) {
	var c Counts
	for _, s := range []Status{StatusPass, StatusPass, StatusFail, StatusError, StatusPending} {
		c.Add(s)
	}
	assert.Equal(t, Counts{Pass: 2, Fail: 1, Error: 1, Pending: 1, Total: 5}, c)
}

func TestCaseResult_AddError(t *testing.T) {
	cr := CaseResult{Status: StatusPass}
	cr.AddError("x")
	assert.Equal(t, StatusFail, cr.Status)

	cr = CaseResult{Status: StatusError}
	cr.AddError("y")
	assert.Equal(t, StatusError, cr.Status)
	assert.Equal(t, []string{"y"}, cr.Errors)
}
