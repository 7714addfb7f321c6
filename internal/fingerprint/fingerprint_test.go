package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateCollapsesVariableTokens(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "uuid",
			body: "session 9f1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d expired",
			want: "session * expired",
		},
		{
			name: "ipv4",
			body: "connection from 10.0.42.7 refused",
			want: "connection from * refused",
		},
		{
			name: "digits",
			body: "retried 17 times in 250 ms",
			want: "retried * times in * ms",
		},
		{
			name: "mixed",
			body: "user 42 at 192.168.0.1 request 9f1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d failed",
			want: "user * at * request * failed",
		},
		{
			name: "no variables",
			body: "disk failure imminent",
			want: "disk failure imminent",
		},
		{
			name: "empty",
			body: "",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Template(tc.body))
		})
	}
}

func TestTemplateEquivalenceClass(t *testing.T) {
	// Two occurrences of the same event differing only in variable tokens
	// must map to the same template.
	a := Template("query took 1542 ms for client 10.1.2.3")
	b := Template("query took 7 ms for client 192.168.99.250")
	assert.Equal(t, a, b)
}

func TestRhythmHashDeterministic(t *testing.T) {
	h1 := FromLog("billing", "ERROR", "payment 123 declined")
	h2 := FromLog("billing", "ERROR", "payment 99881 declined")
	assert.Equal(t, h1, h2, "variable tokens must not affect the fingerprint")

	parts := strings.Split(h1, ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 16)
	assert.Len(t, parts[1], 16)
}

func TestRhythmHashSeparatesStructuralComponent(t *testing.T) {
	base := FromLog("billing", "ERROR", "payment declined")
	otherService := FromLog("checkout", "ERROR", "payment declined")
	otherSeverity := FromLog("billing", "WARN", "payment declined")
	otherBody := FromLog("billing", "ERROR", "payment accepted")

	assert.NotEqual(t, base, otherService)
	assert.NotEqual(t, base, otherSeverity)
	assert.NotEqual(t, base, otherBody)

	// Same template keeps the first half stable across services.
	assert.Equal(t, strings.Split(base, ":")[0], strings.Split(otherService, ":")[0])
}

func TestRhythmHashEmptyBody(t *testing.T) {
	h := FromLog("api", "INFO", "")
	require.NotEmpty(t, h)
	assert.Equal(t, h, FromLog("api", "INFO", ""))
}

func TestVectorShape(t *testing.T) {
	vec := Vector("connection from * refused")
	require.Len(t, vec, VectorDim)
	for _, v := range vec {
		assert.True(t, v == 1 || v == -1, "components must be in {-1, +1}, got %v", v)
	}
}

func TestVectorDeterministicAndDiscriminates(t *testing.T) {
	a := Vector("query took * ms for client *")
	b := Vector("query took * ms for client *")
	c := Vector("kernel panic on cpu *")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestVectorEmptyTemplate(t *testing.T) {
	vec := Vector("")
	require.Len(t, vec, VectorDim)
	for _, v := range vec {
		assert.Equal(t, float32(1), v, "ties resolve to +1")
	}
}
