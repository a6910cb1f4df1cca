package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Elevated(t *testing.T) {
	for _, r := range []Role{RoleOperations, RoleBilling, RoleCompliance, RoleAdmin} {
		assert.True(t, r.Elevated(), r)
	}
	for _, r := range []Role{RolePatient, RolePrescriber, RoleStaff, Role("guest")} {
		assert.False(t, r.Elevated(), r)
	}
}

func TestRole_OwnerKind(t *testing.T) {
	assert.Equal(t, OwnerKindPatient, RolePatient.OwnerKind())
	assert.Equal(t, OwnerKindPrescriber, RolePrescriber.OwnerKind())
	assert.Equal(t, OwnerKindStaff, RoleOperations.OwnerKind())
	assert.Equal(t, OwnerKindStaff, RoleStaff.OwnerKind())
}

func TestRequester_CanAccess(t *testing.T) {
	tests := []struct {
		name  string
		req   Requester
		owner string
		want  bool
	}{
		{"owner", Requester{ID: "user-42", Role: RolePatient}, "user-42", true},
		{"other patient", Requester{ID: "user-7", Role: RolePatient}, "user-42", false},
		{"prescriber not owner", Requester{ID: "doc-1", Role: RolePrescriber}, "user-42", false},
		{"compliance", Requester{ID: "c-1", Role: RoleCompliance}, "user-42", true},
		{"anonymous", Requester{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.CanAccess(tt.owner))
		})
	}
}

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType("prescription")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypePrescription, dt)

	dt, err = ParseDocumentType(" Proof_Of_Delivery")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypeProofOfDelivery, dt)

	_, err = ParseDocumentType("selfie")
	assert.Error(t, err)
}

func TestScanStatus_Terminal(t *testing.T) {
	assert.False(t, ScanStatusPending.Terminal())
	assert.True(t, ScanStatusClean.Terminal())
	assert.True(t, ScanStatusInfected.Terminal())
}

func TestNewPage(t *testing.T) {
	id := func(s string) string { return s }

	p := NewPage([]string{"c", "b", "a"}, 2, id)
	assert.Equal(t, []string{"c", "b"}, p.Items)
	assert.True(t, p.HasMore)
	assert.Equal(t, "b", p.NextCursor)

	p = NewPage([]string{"c", "b"}, 2, id)
	assert.False(t, p.HasMore)
	assert.Empty(t, p.NextCursor)

	p = NewPage[string](nil, 2, id)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
}

func TestPageRequest_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, PageRequest{}.EffectiveLimit())
	assert.Equal(t, MaxPageLimit, PageRequest{Limit: 1000}.EffectiveLimit())
	assert.Equal(t, 7, PageRequest{Limit: 7}.EffectiveLimit())
}
