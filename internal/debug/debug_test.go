package debug

import "testing"

func TestEnable(t *testing.T) {
	t.Cleanup(func() { Enable(false) })

	Enable(false)
	if Enabled() {
		t.Fatal("Enabled() = true after Enable(false)")
	}
	Logf("dropped %d", 1)

	Enable(true)
	if !Enabled() {
		t.Fatal("Enabled() = false after Enable(true)")
	}
	Logf("written %d", 2)
	Sync()
}
