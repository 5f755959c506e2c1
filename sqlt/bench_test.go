package sqlt

import (
	"testing"

	"github.com/syssam/consql/dialect"
)

func BenchmarkRender_Save(b *testing.B) {
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			r, err := New(d)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			for range b.N {
				_, _ = r.Render(Save, userProfile, &Context{
					Columns: []string{"id", "email", "status"},
					Values:  map[string]any{"id": 1, "email": "a8m@example.com", "status": "active"},
					Updates: []string{"email", "status"},
				})
			}
		})
	}
}

func BenchmarkRender_List(b *testing.B) {
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			r, err := New(d)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			for range b.N {
				_, _ = r.Render(List, userProfile, &Context{
					Shard:  "eu",
					Filter: map[string]any{"status": "active", "email": nil},
					Sort:   []string{"-id"},
					Limit:  10,
					Offset: 20,
				})
			}
		})
	}
}
