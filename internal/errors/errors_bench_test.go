package errors

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkCollector_Add(b *testing.B) {
	collector := NewCollector()

	b.ResetTimer()
	for i := range b.N {
		collector.Add(NewParseError(ErrCodeInvalidJSON, "invalid entity JSON", nil).
			WithPath(fmt.Sprintf("packs/demo/characters/c%d.json", i)))
	}
}

func BenchmarkCollector_Records(b *testing.B) {
	collector := NewCollector()
	for i := range 1000 {
		collector.Add(NewNotFoundError(ErrCodeFileNotFound, "missing", nil).WithPath(fmt.Sprintf("f%d.json", i)))
	}

	b.ResetTimer()
	for range b.N {
		_ = collector.Records()
	}
}

func BenchmarkCollector_ByPath(b *testing.B) {
	collector := NewCollector()
	for i := range 1000 {
		collector.Add(NewParseError(ErrCodeInvalidJSON, "bad", nil).WithPath(fmt.Sprintf("f%d.json", i%50)))
	}

	b.ResetTimer()
	for i := range b.N {
		_ = collector.ByPath(fmt.Sprintf("f%d.json", i%50))
	}
}

func BenchmarkCollector_Concurrent(b *testing.B) {
	collector := NewCollector()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			collector.Add(NewSourceImageError(ErrCodeDecodeFailed, "undecodable", nil).WithEntity(fmt.Sprintf("demo>hero>alt%d", i)))
			i++
		}
	})
}

func BenchmarkCharosterError_Error(b *testing.B) {
	err := NewParseError(ErrCodeInvalidJSON, "invalid entity JSON", fmt.Errorf("unexpected end of input")).
		WithPath("packs/demo/characters/hero.json").
		WithEntity("demo>hero")

	b.ResetTimer()
	for range b.N {
		_ = err.Error()
	}
}

func BenchmarkErrorHandler_Handle(b *testing.B) {
	collector := NewCollector()
	handler := NewErrorHandler(nil, collector)
	ctx := context.Background()
	err := NewParseError(ErrCodeInvalidJSON, "bad", nil)

	b.ResetTimer()
	for range b.N {
		handler.Handle(ctx, err)
	}
}
