package security

import "testing"

func testLimits() Limits {
	return Limits{MaxFileSize: 1024, MaxTotalSize: 4096, MaxCompressionRatio: 10.0}
}

func TestCheckPath(t *testing.T) {
	v := NewValidator(testLimits())

	tests := []struct {
		path      string
		shouldErr bool
	}{
		{"system/build.prop", false},
		{"boot.img", false},
		{"../etc/passwd", true},
		{"/etc/passwd", true},
		{"dir/../file.txt", false},
		{"dir/../../escape", true},
		{"..", true},
	}

	for _, tt := range tests {
		err := v.CheckPath(tt.path)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for path %q", tt.path)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for path %q: %v", tt.path, err)
		}
	}
}

func TestCheckSymlink(t *testing.T) {
	v := NewValidator(testLimits())

	tests := []struct {
		link      string
		target    string
		shouldErr bool
	}{
		{"bin/sh", "/usr/bin/dash", false},          // absolute, container-relative
		{"etc/fonts/conf.d/x", "../conf.avail/y", false}, // resolves inside root
		{"top", "../../etc/passwd", true},           // escapes root
		{"a/b/c", "../../../..", true},
	}

	for _, tt := range tests {
		err := v.CheckSymlink(tt.link, tt.target)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for %q -> %q", tt.link, tt.target)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for %q -> %q: %v", tt.link, tt.target, err)
		}
	}
}

func TestSizeLimits(t *testing.T) {
	v := NewValidator(testLimits())

	if err := v.CheckFileSize(1024); err != nil {
		t.Errorf("size at limit should pass: %v", err)
	}
	if err := v.CheckFileSize(1025); err == nil {
		t.Error("size over limit should fail")
	}

	for i := 0; i < 4; i++ {
		if err := v.AddSize(1024); err != nil {
			t.Fatalf("AddSize %d failed: %v", i, err)
		}
	}
	if err := v.AddSize(1); err == nil {
		t.Error("total over limit should fail")
	}

	v.Reset()
	if v.TotalSize() != 0 {
		t.Errorf("TotalSize after Reset = %d", v.TotalSize())
	}
}

func TestCheckRatio(t *testing.T) {
	v := NewValidator(testLimits())

	if err := v.CheckRatio(100, 900); err != nil {
		t.Errorf("ratio 9 should pass: %v", err)
	}
	if err := v.CheckRatio(100, 1100); err == nil {
		t.Error("ratio 11 should fail")
	}
	if err := v.CheckRatio(0, 100); err == nil {
		t.Error("zero compressed size should fail")
	}
}
