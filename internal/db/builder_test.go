package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_RegistryIndex(t *testing.T) {
	idx, err := NewIndex("mastrvec:solar_anlagen:idx").
		Prefix("mastrvec:solar_anlagen:").
		Numeric("registrierungsdatum").
		Tag("eeg_mastr_nummer").
		VectorFlat("vector", 768, DistanceL2, 1024).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(idx.Fields) != 3 {
		t.Fatalf("fields count = %d, want 3", len(idx.Fields))
	}
	vec := idx.Fields[2]
	if vec.VectorAlgo != VectorFlat || vec.VectorBlockSize != 1024 || vec.VectorDistance != DistanceL2 {
		t.Errorf("unexpected vector field: %+v", vec)
	}
}

func TestIndexBuilder_HNSW(t *testing.T) {
	idx, err := NewIndex("idx").VectorHNSW("vector", 8, DistanceCosine, 16, 200).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Fields[0].VectorM != 16 || idx.Fields[0].VectorEFConstruct != 200 {
		t.Errorf("unexpected hnsw params: %+v", idx.Fields[0])
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("a"), "name is required"},
		{"invalid name", NewIndex("bad name").Tag("a"), "invalid characters"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"zero dim", NewIndex("idx").VectorFlat("v", 0, DistanceL2, 0), "positive DIM"},
		{"duplicate", NewIndex("idx").Tag("a").Numeric("a"), "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, _ := NewIndex("idx").Prefix("p:").Tag("t").VectorFlat("vector", 4, DistanceL2, 0).Build()
	want := "FT.CREATE idx ON HASH PREFIX p: SCHEMA t TAG vector VECTOR FLAT"
	if got := idx.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestScoreField(t *testing.T) {
	if got := ScoreField(""); got != "__vector_score" {
		t.Errorf("ScoreField(\"\") = %q", got)
	}
	if got := ScoreField("embedding"); got != "__embedding_score" {
		t.Errorf("ScoreField(embedding) = %q", got)
	}
}
