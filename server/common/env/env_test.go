package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	t.Setenv("FB_TEST_STRING", "  value ")
	assert.Equal(t, "value", String("FB_TEST_STRING", "fallback"))
	assert.Equal(t, "fallback", String("FB_TEST_STRING_UNSET", "fallback"))
}

func TestInt(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"42", 42},
		{"0", 0},
		{"-1", 7},
		{"abc", 7},
		{"", 7},
	}
	for _, tt := range tests {
		t.Setenv("FB_TEST_INT", tt.raw)
		assert.Equal(t, tt.want, Int("FB_TEST_INT", 7), "raw=%q", tt.raw)
	}
}

func TestInt64(t *testing.T) {
	t.Setenv("FB_TEST_INT64", "10485760")
	assert.Equal(t, int64(10485760), Int64("FB_TEST_INT64", 1))
	t.Setenv("FB_TEST_INT64", "ten")
	assert.Equal(t, int64(1), Int64("FB_TEST_INT64", 1))
}

func TestBool(t *testing.T) {
	t.Setenv("FB_TEST_BOOL", "true")
	assert.True(t, Bool("FB_TEST_BOOL", false))
	t.Setenv("FB_TEST_BOOL", "maybe")
	assert.False(t, Bool("FB_TEST_BOOL", false))
}

func TestDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"90", 90 * time.Second},
		{"0", time.Hour},
		{"-5m", time.Hour},
		{"soon", time.Hour},
	}
	for _, tt := range tests {
		t.Setenv("FB_TEST_DURATION", tt.raw)
		assert.Equal(t, tt.want, Duration("FB_TEST_DURATION", time.Hour), "raw=%q", tt.raw)
	}
}

func TestCSV(t *testing.T) {
	t.Setenv("FB_TEST_CSV", "image/png, text/plain,,image/png ")
	assert.Equal(t, []string{"image/png", "text/plain"}, CSV("FB_TEST_CSV", nil))

	t.Setenv("FB_TEST_CSV", " , ")
	assert.Equal(t, []string{"a"}, CSV("FB_TEST_CSV", []string{"a"}))
}
