package http

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestCreateRequestValidation(t *testing.T) {
	validate := validator.New()

	cases := []struct {
		name string
		req  createReq
		ok   bool
	}{
		{
			name: "valid",
			req:  createReq{AccommodationID: 1, CheckIn: "2026-09-10", CheckOut: "2026-09-13", Phone: "+15550100"},
			ok:   true,
		},
		{
			name: "missing accommodation",
			req:  createReq{CheckIn: "2026-09-10", CheckOut: "2026-09-13", Phone: "+15550100"},
			ok:   false,
		},
		{
			name: "missing dates",
			req:  createReq{AccommodationID: 1, Phone: "+15550100"},
			ok:   false,
		},
		{
			name: "missing phone",
			req:  createReq{AccommodationID: 1, CheckIn: "2026-09-10", CheckOut: "2026-09-13"},
			ok:   false,
		},
		{
			name: "phone not e164",
			req:  createReq{AccommodationID: 1, CheckIn: "2026-09-10", CheckOut: "2026-09-13", Phone: "555-0100"},
			ok:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validate.Struct(tc.req)
			if tc.ok && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}
