package service

import (
	"fmt"
	"strings"

	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/storage"
)

type MedicineService struct {
	storage *storage.Storage
}

func NewMedicineService(s *storage.Storage) *MedicineService {
	return &MedicineService{storage: s}
}

func (s *MedicineService) Create(userID int64, name, dosage, color, notes string) (*domain.Medicine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validationf("medicine name cannot be empty")
	}

	medicine := &domain.Medicine{
		UserID: userID,
		Name:   name,
		Dosage: strings.TrimSpace(dosage),
		Color:  color,
		Notes:  strings.TrimSpace(notes),
	}

	if err := s.storage.CreateMedicine(medicine); err != nil {
		return nil, fmt.Errorf("create medicine: %w", err)
	}

	return medicine, nil
}

func (s *MedicineService) List(userID int64) ([]*domain.Medicine, error) {
	return s.storage.ListMedicinesByUser(userID)
}

func (s *MedicineService) Get(id int64) (*domain.Medicine, error) {
	return s.storage.GetMedicine(id)
}

func (s *MedicineService) Update(id, userID int64, name, dosage, color, notes string) error {
	medicine, err := s.storage.GetMedicine(id)
	if err != nil {
		return fmt.Errorf("get medicine: %w", err)
	}
	if medicine == nil {
		return domain.ErrNotFound
	}
	if medicine.UserID != userID {
		return domain.ErrNotFound
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Validationf("medicine name cannot be empty")
	}

	medicine.Name = name
	medicine.Dosage = strings.TrimSpace(dosage)
	medicine.Color = color
	medicine.Notes = strings.TrimSpace(notes)

	return s.storage.UpdateMedicine(medicine)
}

// Delete removes the medicine with all of its schedules and records.
func (s *MedicineService) Delete(id, userID int64) error {
	medicine, err := s.storage.GetMedicine(id)
	if err != nil {
		return fmt.Errorf("get medicine: %w", err)
	}
	if medicine == nil {
		return domain.ErrNotFound
	}
	if medicine.UserID != userID {
		return domain.ErrNotFound
	}

	return s.storage.DeleteMedicine(id)
}

// ParseAddArgs parses "/addmed Name | dosage | notes" format.
func (s *MedicineService) ParseAddArgs(args string) (name, dosage, notes string, err error) {
	parts := strings.Split(args, "|")
	name = strings.TrimSpace(parts[0])
	if name == "" {
		err = domain.Validationf("format: /addmed Name | dosage | notes")
		return
	}
	if len(parts) > 1 {
		dosage = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		notes = strings.TrimSpace(parts[2])
	}
	return
}

func (s *MedicineService) FormatMedicineList(medicines []*domain.Medicine) string {
	if len(medicines) == 0 {
		return "No medicines yet. /addmed to add one"
	}

	var sb strings.Builder
	sb.WriteString("<b>💊 Medicines</b>\n\n")
	for _, m := range medicines {
		sb.WriteString(fmt.Sprintf("%s <code>#%d</code> <b>%s</b>", m.ColorEmoji(), m.ID, m.Name))
		if m.Dosage != "" {
			sb.WriteString(" — " + m.Dosage)
		}
		sb.WriteString("\n")
		if m.Notes != "" {
			sb.WriteString("    " + m.Notes + "\n")
		}
	}
	return sb.String()
}
