package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"full", "1.2.3", "1.2.3", false},
		{"major only", "1", "1.0.0", false},
		{"major minor", "1.2", "1.2.0", false},
		{"leading zeros", "1.01.1", "1.1.1", false},
		{"four part drops revision", "1.2.3.4", "1.2.3", false},
		{"prerelease", "1.0.0-beta.1", "1.0.0-beta.1", false},
		{"prerelease on partial", "1.2-rc1", "1.2.0-rc1", false},
		{"metadata ignored in normal form kept in string", "1.0.0+build.5", "1.0.0+build.5", false},
		{"empty", "", "", true},
		{"garbage", "abc", "", true},
		{"negative", "-1.0", "", true},
		{"five parts", "1.2.3.4.5", "", true},
		{"trailing dash", "1.0.0-", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := v.ToNormalizedString(); got != tt.want {
				t.Errorf("ToNormalizedString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"1.1.0", "1.0.9", 1},
		{"1.0.0", "1.0.1", -1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0-alpha.1", "1.0.0-alpha", 1},
		{"1.0.0-alpha.2", "1.0.0-alpha.10", -1},
		{"1.0.0-alpha1", "1.0.0-prealpha0", -1},
		{"1.0.0+build1", "1.0.0+build2", 0},
		{"1", "1.0.0", 0},
	}

	for _, tt := range tests {
		got := MustParse(tt.a).Compare(MustParse(tt.b))
		if got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalizeOrOriginal(t *testing.T) {
	if got := NormalizeOrOriginal("1.2"); got != "1.2.0" {
		t.Errorf("NormalizeOrOriginal(1.2) = %q", got)
	}
	if got := NormalizeOrOriginal("not-a-version"); got != "not-a-version" {
		t.Errorf("NormalizeOrOriginal passthrough = %q", got)
	}
}

func TestMax(t *testing.T) {
	versions := []*NuGetVersion{
		MustParse("1.0.0"),
		MustParse("2.0.0-rc.1"),
		MustParse("1.9.3"),
	}
	if got := Max(versions); got.ToNormalizedString() != "2.0.0-rc.1" {
		t.Errorf("Max() = %v", got)
	}
	if got := Max(nil); got != nil {
		t.Errorf("Max(nil) = %v, want nil", got)
	}
}
