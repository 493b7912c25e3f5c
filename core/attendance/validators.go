package attendance

import (
	"github.com/go-playground/validator/v10"

	"github.com/rahulsahu-12/nexus2/core"
)

func (ss *StartSession) Validate(validate *validator.Validate) error {
	ss.Subject = core.CleanString(ss.Subject)
	ss.Year = core.CleanString(ss.Year)
	return validate.Struct(ss)
}

func (ma *MarkAttendance) Validate(validate *validator.Validate) error {
	ma.DigitCode = core.CleanString(ma.DigitCode)
	return validate.Struct(ma)
}

func (mc *ManualCheck) Validate(validate *validator.Validate) error {
	mc.Subject = core.CleanString(mc.Subject)
	mc.Year = core.CleanString(mc.Year)
	mc.Date = core.CleanString(mc.Date)
	return validate.Struct(mc)
}

func (hf *HistoryFilter) Validate(validate *validator.Validate) error {
	hf.Subject = core.CleanString(hf.Subject)
	hf.Year = core.CleanString(hf.Year)
	hf.Date = core.CleanString(hf.Date)
	return validate.Struct(hf)
}

// Validate also rejects batches listing the same student twice.
func (m *ManualAttendance) Validate(validate *validator.Validate) error {
	m.Subject = core.CleanString(m.Subject)
	m.Year = core.CleanString(m.Year)
	m.Date = core.CleanString(m.Date)
	for i := range m.Records {
		m.Records[i].Status = Status(core.CleanString(string(m.Records[i].Status), true /* lower */))
	}

	if err := validate.Struct(m); err != nil {
		return err
	}

	seen := make(map[int64]struct{}, len(m.Records))
	for _, r := range m.Records {
		if _, ok := seen[r.StudentID]; ok {
			err := ErrDuplicateStudent
			return core.NewValidationError(err, core.FieldError{Field: "records", Error: err.Error()})
		}
		seen[r.StudentID] = struct{}{}
	}
	return nil
}
