package domain

// Identity — минимальная запись о пользователе, достаточная для
// валидации и обогащения заказов.
type Identity struct {
	ID     int64
	Name   string
	Active bool
}

// HasID сообщает, вернул ли справочник идентификатор пользователя.
func (i Identity) HasID() bool {
	return i.ID > 0
}
