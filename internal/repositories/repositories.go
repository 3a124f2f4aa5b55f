package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoollibrary/internal/models"
	"schoollibrary/internal/records"
)

// Every method takes an optional *gorm.DB so callers can run it inside a
// transaction; nil falls back to the repository's own handle.

type BookRepository interface {
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id string) (*models.Book, error)
	Create(db *gorm.DB, book *models.Book) error
	Update(db *gorm.DB, book models.Book) error
	Delete(db *gorm.DB, id string) error
	ReplaceAll(db *gorm.DB, books []models.Book) error
}

type StudentRepository interface {
	List(db *gorm.DB) ([]models.Student, error)
	GetByID(db *gorm.DB, id string) (*models.Student, error)
	Create(db *gorm.DB, student *models.Student) error
	Update(db *gorm.DB, student models.Student) error
	Delete(db *gorm.DB, id string) error
	ReplaceAll(db *gorm.DB, students []models.Student) error
}

type LoanRepository interface {
	List(db *gorm.DB) ([]models.Loan, error)
	GetByID(db *gorm.DB, id string) (*models.Loan, error)
	Create(db *gorm.DB, loan *models.Loan) error
	UpdateDetails(db *gorm.DB, loan models.Loan) error
	MarkReturned(db *gorm.DB, id string, returnedAt time.Time) error
	Delete(db *gorm.DB, id string) error
	ReplaceAll(db *gorm.DB, loans []models.Loan) error
}

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var rows []records.BookRow
	if err := db.Order("title ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	books := make([]models.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, records.BookFromRow(row))
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id string) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var row records.BookRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	book := records.BookFromRow(row)
	return &book, nil
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	book.ID = uuid.NewString()
	row := records.BookToRow(*book)
	return db.Create(&row).Error
}

func (r *bookRepository) Update(db *gorm.DB, book models.Book) error {
	if db == nil {
		db = r.db
	}
	row := records.BookToRow(book)
	res := db.Model(&records.BookRow{}).
		Where("id = ?", book.ID).
		Select("*").Omit("id").
		Updates(&row)
	return affected(res)
}

func (r *bookRepository) Delete(db *gorm.DB, id string) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&records.BookRow{}, "id = ?", id).Error
}

func (r *bookRepository) ReplaceAll(db *gorm.DB, books []models.Book) error {
	if db == nil {
		db = r.db
	}
	if err := db.Where("1 = 1").Delete(&records.BookRow{}).Error; err != nil {
		return err
	}
	if len(books) == 0 {
		return nil
	}
	rows := make([]records.BookRow, 0, len(books))
	for _, b := range books {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		rows = append(rows, records.BookToRow(b))
	}
	return db.CreateInBatches(&rows, 200).Error
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) List(db *gorm.DB) ([]models.Student, error) {
	if db == nil {
		db = r.db
	}
	var rows []records.StudentRow
	if err := db.Order("class ASC").Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	students := make([]models.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, records.StudentFromRow(row))
	}
	return students, nil
}

func (r *studentRepository) GetByID(db *gorm.DB, id string) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var row records.StudentRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	student := records.StudentFromRow(row)
	return &student, nil
}

func (r *studentRepository) Create(db *gorm.DB, student *models.Student) error {
	if db == nil {
		db = r.db
	}
	student.ID = uuid.NewString()
	row := records.StudentToRow(*student)
	return db.Create(&row).Error
}

func (r *studentRepository) Update(db *gorm.DB, student models.Student) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&records.StudentRow{}).
		Where("id = ?", student.ID).
		Updates(map[string]interface{}{
			"name":  student.Name,
			"class": student.Class,
		})
	return affected(res)
}

func (r *studentRepository) Delete(db *gorm.DB, id string) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&records.StudentRow{}, "id = ?", id).Error
}

func (r *studentRepository) ReplaceAll(db *gorm.DB, students []models.Student) error {
	if db == nil {
		db = r.db
	}
	if err := db.Where("1 = 1").Delete(&records.StudentRow{}).Error; err != nil {
		return err
	}
	if len(students) == 0 {
		return nil
	}
	rows := make([]records.StudentRow, 0, len(students))
	for _, s := range students {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		rows = append(rows, records.StudentToRow(s))
	}
	return db.CreateInBatches(&rows, 200).Error
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) List(db *gorm.DB) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var rows []records.LoanRow
	if err := db.Order("loan_date DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	loans := make([]models.Loan, 0, len(rows))
	for _, row := range rows {
		loans = append(loans, records.LoanFromRow(row))
	}
	return loans, nil
}

func (r *loanRepository) GetByID(db *gorm.DB, id string) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var row records.LoanRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	loan := records.LoanFromRow(row)
	return &loan, nil
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	loan.ID = uuid.NewString()
	row := records.LoanToRow(*loan)
	return db.Create(&row).Error
}

// UpdateDetails rewrites the denormalized student and book fields only.
// loan_date, due_date and return_date are never touched here.
func (r *loanRepository) UpdateDetails(db *gorm.DB, loan models.Loan) error {
	if db == nil {
		db = r.db
	}
	row := records.LoanToRow(loan)
	res := db.Model(&records.LoanRow{}).
		Where("id = ?", loan.ID).
		Updates(map[string]interface{}{
			"student_name":  row.StudentName,
			"student_class": row.StudentClass,
			"book_id":       row.BookID,
			"book_title":    row.BookTitle,
		})
	return affected(res)
}

func (r *loanRepository) MarkReturned(db *gorm.DB, id string, returnedAt time.Time) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&records.LoanRow{}).
		Where("id = ?", id).
		Update("return_date", returnedAt.UTC())
	return affected(res)
}

func (r *loanRepository) Delete(db *gorm.DB, id string) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&records.LoanRow{}, "id = ?", id).Error
}

func (r *loanRepository) ReplaceAll(db *gorm.DB, loans []models.Loan) error {
	if db == nil {
		db = r.db
	}
	if err := db.Where("1 = 1").Delete(&records.LoanRow{}).Error; err != nil {
		return err
	}
	if len(loans) == 0 {
		return nil
	}
	rows := make([]records.LoanRow, 0, len(loans))
	for _, l := range loans {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		rows = append(rows, records.LoanToRow(l))
	}
	return db.CreateInBatches(&rows, 200).Error
}

// affected turns an update that matched no rows into gorm.ErrRecordNotFound.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
