package domain

import (
	"math"
	"slices"
	"strings"
)

const (
	// DefaultPageSize — размер страницы, если клиент его не указал.
	DefaultPageSize = 10
	// MaxPageSize ограничивает размер страницы сверху.
	MaxPageSize = 100
)

// SortDirection — направление сортировки выборки.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection разбирает направление без учёта регистра; пустое значение — desc.
func ParseSortDirection(raw string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return SortDesc, nil
	case string(SortAsc):
		return SortAsc, nil
	case string(SortDesc):
		return SortDesc, nil
	default:
		return "", ErrSortInvalid
	}
}

// Поля сортировки заказов в терминах API.
const (
	OrderSortID         = "id"
	OrderSortUserID     = "userId"
	OrderSortStatus     = "status"
	OrderSortTotalPrice = "totalPrice"
	OrderSortCreatedAt  = "createdAt"
	OrderSortUpdatedAt  = "updatedAt"
)

// Поля сортировки товаров в терминах API.
const (
	ItemSortID        = "id"
	ItemSortName      = "name"
	ItemSortPrice     = "price"
	ItemSortCreatedAt = "createdAt"
	ItemSortUpdatedAt = "updatedAt"
)

var (
	// OrderSortFields — допустимые поля сортировки заказов.
	OrderSortFields = []string{
		OrderSortID, OrderSortUserID, OrderSortStatus,
		OrderSortTotalPrice, OrderSortCreatedAt, OrderSortUpdatedAt,
	}
	// ItemSortFields — допустимые поля сортировки товаров.
	ItemSortFields = []string{
		ItemSortID, ItemSortName, ItemSortPrice, ItemSortCreatedAt, ItemSortUpdatedAt,
	}
)

// Sort задаёт поле и направление сортировки.
type Sort struct {
	Field     string
	Direction SortDirection
}

// PageRequest — номер страницы (с нуля), размер и сортировка.
type PageRequest struct {
	Page int
	Size int
	Sort Sort
}

// Validate проверяет границы страницы и допустимость поля сортировки.
func (p PageRequest) Validate(sortFields []string) error {
	if p.Page < 0 || p.Size < 1 || p.Size > MaxPageSize {
		return ErrPageInvalid
	}
	// Page*Size должен помещаться в int.
	if p.Page > math.MaxInt/p.Size {
		return ErrPageInvalid
	}
	if !slices.Contains(sortFields, p.Sort.Field) {
		return ErrSortInvalid
	}
	if p.Sort.Direction != SortAsc && p.Sort.Direction != SortDesc {
		return ErrSortInvalid
	}
	return nil
}

// Offset возвращает количество записей, которые нужно пропустить.
// При переполнении возвращается math.MaxInt.
func (p PageRequest) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// Page — страница результатов с общим количеством записей.
type Page[T any] struct {
	Content       []T
	Page          int
	Size          int
	TotalElements int64
}

// NewPage собирает страницу по запросу и общему количеству.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
	}
}

// TotalPages возвращает количество страниц при текущем размере.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.TotalElements + int64(p.Size) - 1) / int64(p.Size))
}

// MapPage преобразует содержимое страницы, сохраняя метаданные.
func MapPage[T, R any](p Page[T], fn func(T) R) Page[R] {
	content := make([]R, 0, len(p.Content))
	for _, v := range p.Content {
		content = append(content, fn(v))
	}
	return Page[R]{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: p.TotalElements,
	}
}
