// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package identify

import (
	"errors"
	"testing"

	"github.com/pdiddy/review-engine/pkg/types"
)

func fingerprintRecord() *types.Record {
	rec := types.NewRecord("Smith2018", "article")
	rec.Status = types.StatusMdPrepared
	rec.Set(types.FieldAuthor, "Smith, Jane and Jones, Bob")
	rec.Set(types.FieldJournal, "MIS Quarterly")
	rec.Set(types.FieldVolume, "42")
	rec.Set(types.FieldNumber, "2")
	rec.Set(types.FieldYear, "2018")
	rec.Set(types.FieldTitle, "Analyzing the Past to Prepare for the Future")
	return rec
}

func TestCreateFingerprint(t *testing.T) {
	got, err := CreateFingerprint(fingerprintRecord(), false)
	if err != nil {
		t.Fatal(err)
	}
	want := "colrev_id1:|article|mis-quarterly|42|2|2018|smith-jones|analyzing-the-past-to-prepare-for-the-future"
	if got != want {
		t.Errorf("fingerprint = %q, want %q", got, want)
	}
}

func TestCreateFingerprintNormalization(t *testing.T) {
	a := fingerprintRecord()
	a.Set(types.FieldAuthor, "Müller, Jörg")
	a.Set(types.FieldTitle, "Über die Methode: A Survey!")

	b := fingerprintRecord()
	b.Set(types.FieldAuthor, "MULLER, JORG")
	b.Set(types.FieldTitle, "Uber die Methode -- a survey")

	fpA, err := CreateFingerprint(a, false)
	if err != nil {
		t.Fatal(err)
	}
	fpB, err := CreateFingerprint(b, false)
	if err != nil {
		t.Fatal(err)
	}
	if fpA != fpB {
		t.Errorf("normalized fingerprints differ:\n%s\n%s", fpA, fpB)
	}
}

func TestCreateFingerprintMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Record)
		missing string
	}{
		{"no author", func(r *types.Record) { r.Remove(types.FieldAuthor) }, types.FieldAuthor},
		{"no year", func(r *types.Record) { r.Remove(types.FieldYear) }, types.FieldYear},
		{"no title", func(r *types.Record) { r.Remove(types.FieldTitle) }, types.FieldTitle},
		{"article without journal", func(r *types.Record) { r.Remove(types.FieldJournal) }, types.FieldJournal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fingerprintRecord()
			tt.mutate(rec)
			_, err := CreateFingerprint(rec, false)
			var notEnough *NotEnoughDataToIdentifyError
			if !errors.As(err, &notEnough) {
				t.Fatalf("err = %v", err)
			}
			if notEnough.Missing != tt.missing {
				t.Errorf("Missing = %q, want %q", notEnough.Missing, tt.missing)
			}
		})
	}
}

func TestCreateFingerprintUnprepared(t *testing.T) {
	rec := fingerprintRecord()
	rec.Status = types.StatusMdImported

	if _, err := CreateFingerprint(rec, false); err == nil {
		t.Error("expected rejection of unprepared record")
	}
	if _, err := CreateFingerprint(rec, true); err != nil {
		t.Errorf("assumeComplete: %v", err)
	}
}

func TestCreateFingerprintEditorFallback(t *testing.T) {
	rec := fingerprintRecord()
	rec.Remove(types.FieldAuthor)
	rec.Set(types.FieldEditor, "Lee, Ann")

	got, err := CreateFingerprint(rec, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := "colrev_id1:|article|mis-quarterly|42|2|2018|lee|analyzing-the-past-to-prepare-for-the-future"; got != want {
		t.Errorf("fingerprint = %q, want %q", got, want)
	}
}

func TestSameFingerprint(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"intersecting", []string{"colrev_id1:|x", "colrev_id1:|y"}, []string{"colrev_id1:|y"}, true},
		{"disjoint", []string{"colrev_id1:|x"}, []string{"colrev_id1:|y"}, false},
		{"empty left", nil, []string{"colrev_id1:|y"}, false},
		{"both empty", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameFingerprint(tt.a, tt.b); got != tt.want {
				t.Errorf("SameFingerprint = %v", got)
			}
		})
	}
}
