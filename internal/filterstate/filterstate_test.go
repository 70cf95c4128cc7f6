package filterstate

import (
	"reflect"
	"testing"

	"atelier/internal/query"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   State
	}{
		{"default", Default.Defaults()},
		{"zero value", State{}},
		{"three tags and mount", State{
			Tags:    []string{"Travel", "#beach", "sun set", "beach"},
			MountID: "4a7f1c2e-9b1d-4c55-8d7e-0f7a4b3c2d1e",
			Page:    3, Sort: query.SortOldest, PageSize: 40, Duration: Bucket10To30,
		}},
		{"page size outside allow-list", State{PageSize: 33, Page: 2}},
		{"negative page", State{Page: -5, Search: "cats & dogs"}},
		{"open bucket and favorites", State{Duration: BucketOver60, Favorites: true, Search: "  spaced  "}},
		{"unknown enums", State{Sort: "sideways", Duration: "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decode(Encode(tt.in))
			want := Normalize(tt.in)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Decode(Encode(s)) = %+v, want %+v", got, want)
			}
		})
	}
}

func TestEncodeOmitsDefaults(t *testing.T) {
	t.Parallel()

	if got := Encode(Default.Defaults()); got != "" {
		t.Errorf("Encode(defaults) = %q, want empty", got)
	}
	if got := Encode(State{Page: -5, PageSize: 33, Sort: "bogus"}); got != "" {
		t.Errorf("Encode(invalid) = %q, want empty after normalization", got)
	}
}

func TestEncodeCanonicalTags(t *testing.T) {
	t.Parallel()

	a := Encode(State{Tags: []string{"b", "A", "a"}})
	b := Encode(State{Tags: []string{"#a", "b"}})
	if a != b {
		t.Errorf("equal tag sets encode differently: %q vs %q", a, b)
	}
	if a != "tag=a&tag=b" {
		t.Errorf("Encode() = %q, want %q", a, "tag=a&tag=b")
	}
}

func TestEncodeKeyOrder(t *testing.T) {
	t.Parallel()

	got := Encode(State{
		Search: "red fox", Tags: []string{"wild"}, MountID: "m1", Favorites: true,
		Page: 2, Sort: query.SortOldest, PageSize: 12, Duration: BucketOver60,
	})
	want := "q=red+fox&tag=wild&m=m1&fav=1&p=2&sort=oldest&ps=12&len=60%2B"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestDecodeNormalizesGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want State
	}{
		{"", Default.Defaults()},
		{"?p=0&ps=7&sort=up&len=2-3&zzz=1", Default.Defaults()},
		{"p=abc&ps=", Default.Defaults()},
		{"p=-5", Default.Defaults()},
		{"p=99999999999999999999", Default.Defaults()},
		{"p=9223372036854775807", func() State { s := Default.Defaults(); s.Page = query.MaxPage; return s }()},
		{"%zz&q=ok", func() State { s := Default.Defaults(); s.Search = "ok"; return s }()},
		{"SORT=oldest&sort=OLDEST&ps=40&len=5-10", func() State {
			s := Default.Defaults()
			s.Sort = query.SortOldest
			s.PageSize = 40
			s.Duration = Bucket5To10
			return s
		}()},
	}

	for _, tt := range tests {
		if got := Decode(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Decode(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestBucketBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		b      Bucket
		lo, hi float64 // -1 means unbounded
	}{
		{BucketAny, -1, -1},
		{BucketUnder5, 0, 300},
		{Bucket5To10, 300, 600},
		{Bucket10To30, 600, 1800},
		{Bucket30To60, 1800, 3600},
		{BucketOver60, 3600, -1},
	}

	val := func(p *float64) float64 {
		if p == nil {
			return -1
		}
		return *p
	}
	for _, tt := range tests {
		lo, hi := tt.b.Bounds()
		if val(lo) != tt.lo || val(hi) != tt.hi {
			t.Errorf("%s.Bounds() = (%v, %v), want (%v, %v)", tt.b, val(lo), val(hi), tt.lo, tt.hi)
		}
	}
}

func TestSpecConversion(t *testing.T) {
	t.Parallel()

	s := Decode("q=x&tag=a&m=m1&fav=1&p=2&sort=oldest&ps=12&len=0-5")
	spec := s.Spec()
	if spec.Search != "x" || spec.MountID != "m1" || !spec.FavoritesOnly || spec.Page != 2 || spec.PageSize != 12 {
		t.Errorf("Spec() = %+v", spec)
	}
	if spec.Sort != query.SortOldest || !reflect.DeepEqual(spec.Tags, []string{"a"}) {
		t.Errorf("Spec() = %+v", spec)
	}
	if spec.MinDuration == nil || *spec.MinDuration != 0 || spec.MaxDuration == nil || *spec.MaxDuration != 300 {
		t.Errorf("duration bounds = %v, %v", spec.MinDuration, spec.MaxDuration)
	}
}

func TestCodecFromSettings(t *testing.T) {
	t.Parallel()

	settings := query.DefaultSettings()
	settings.PageSizes = []int{10, 50}
	settings.DefaultPageSize = 50
	settings.DefaultSort = query.SortOldest
	c := NewCodec(settings)

	if got := c.Encode(State{PageSize: 50, Sort: query.SortOldest}); got != "" {
		t.Errorf("Encode() = %q, want empty", got)
	}
	if got := c.Decode("ps=20"); got.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", got.PageSize)
	}
	if got := c.Encode(c.Decode("ps=10&sort=newest")); got != "sort=newest&ps=10" {
		t.Errorf("round trip = %q", got)
	}
}
