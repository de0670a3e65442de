package transform

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestForeignKeyEnforcer_RejectsUnknownDoctor(t *testing.T) {
	dumper := newRecordingDumper()
	fk := NewForeignKeyEnforcer(dumper, zerolog.Nop())

	doctors := []Doctor{doctor(1, "A", "Cardiology"), doctor(2, "B", "Neurology")}
	orphan := validAppt(12, 999)
	appts := []Appointment{validAppt(10, 1), orphan, validAppt(11, 2)}

	kept, rejected, err := fk.Enforce(doctors, appts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(kept) != 2 {
		t.Fatalf("expected 2 kept, got %d", len(kept))
	}
	checkInt64(t, "kept[0]", kept[0].BookingID, 10)
	checkInt64(t, "kept[1]", kept[1].BookingID, 11)

	if len(rejected) != 1 || !reflect.DeepEqual(rejected[0], orphan) {
		t.Fatalf("expected the orphan to be rejected, got %+v", rejected)
	}

	dumped := dumper.dumps[ForeignKeyRejectDump]
	if len(dumped) != 1 {
		t.Fatalf("expected 1 dumped row, got %d", len(dumped))
	}
	want := []string{"12", "112", "999", "2023-03-15", "confirmed"}
	if rec := dumped[0].Record(); !reflect.DeepEqual(rec, want) {
		t.Errorf("expected every field in the dump %q, got %q", want, rec)
	}
}

func TestForeignKeyEnforcer_NothingRejected(t *testing.T) {
	dumper := newRecordingDumper()
	fk := NewForeignKeyEnforcer(dumper, zerolog.Nop())

	kept, rejected, err := fk.Enforce([]Doctor{doctor(1, "A", "X")}, []Appointment{validAppt(1, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kept) != 1 || len(rejected) != 0 {
		t.Errorf("expected 1 kept and 0 rejected, got %d and %d", len(kept), len(rejected))
	}
	if n := len(dumper.dumps[ForeignKeyRejectDump]); n != 0 {
		t.Errorf("expected empty dump, got %d rows", n)
	}
}

func TestForeignKeyEnforcer_DumpError(t *testing.T) {
	dumper := newRecordingDumper()
	dumper.err = errors.New("read-only file system")
	fk := NewForeignKeyEnforcer(dumper, zerolog.Nop())

	_, _, err := fk.Enforce(nil, []Appointment{validAppt(1, 1)})
	if err == nil || !strings.Contains(err.Error(), "read-only file system") {
		t.Errorf("expected dump error, got %v", err)
	}
}

func TestPartition_IgnoresNullDoctorIDs(t *testing.T) {
	doctors := []Doctor{{DoctorID: nil}, doctor(5, "E", "X")}
	orphan := validAppt(1, 5)
	orphan.DoctorID = nil

	kept, rejected := Partition(doctors, []Appointment{orphan, validAppt(2, 5)})
	if len(kept) != 1 || len(rejected) != 1 {
		t.Fatalf("expected 1 kept and 1 rejected, got %d and %d", len(kept), len(rejected))
	}
	if rejected[0].DoctorID != nil {
		t.Errorf("expected the null doctor_id row to be rejected, got %d", *rejected[0].DoctorID)
	}
}
