// Package specification описывает составные предикаты выборки.
// Каждый предикат проверяется в памяти и одновременно рендерится в SQL-условие
// squirrel, поэтому одна и та же спецификация работает и с in-memory, и с PostgreSQL хранилищем.
package specification

import (
	sq "github.com/Masterminds/squirrel"
)

// Spec — предикат над T. Нулевое значение не накладывает ограничений.
type Spec[T any] struct {
	pred func(T) bool
	cond sq.Sqlizer
}

// New собирает спецификацию из предиката и SQL-условия.
// nil в любой части означает "без ограничения" для соответствующего исполнения.
func New[T any](pred func(T) bool, cond sq.Sqlizer) Spec[T] {
	return Spec[T]{pred: pred, cond: cond}
}

// All возвращает спецификацию, которой удовлетворяет любая запись.
func All[T any]() Spec[T] {
	return Spec[T]{}
}

// IsSatisfiedBy проверяет запись в памяти.
func (s Spec[T]) IsSatisfiedBy(v T) bool {
	if s.pred == nil {
		return true
	}
	return s.pred(v)
}

// ToSql рендерит условие с плейсхолдерами "?", чтобы его можно было
// передать в Where любого squirrel-билдера.
func (s Spec[T]) ToSql() (string, []any, error) {
	if s.cond == nil {
		return sq.And{}.ToSql()
	}
	return s.cond.ToSql()
}

// Unconstrained сообщает, что спецификация не фильтрует записи.
func (s Spec[T]) Unconstrained() bool {
	return s.pred == nil && s.cond == nil
}

// And объединяет спецификации логическим И. Пустой набор пропускает всё.
func And[T any](specs ...Spec[T]) Spec[T] {
	var (
		preds []func(T) bool
		conds sq.And
	)
	for _, s := range specs {
		if s.pred != nil {
			preds = append(preds, s.pred)
		}
		switch c := s.cond.(type) {
		case nil:
		case sq.And:
			conds = append(conds, c...)
		default:
			conds = append(conds, c)
		}
	}

	out := Spec[T]{}
	switch len(preds) {
	case 0:
	case 1:
		out.pred = preds[0]
	default:
		out.pred = func(v T) bool {
			for _, p := range preds {
				if !p(v) {
					return false
				}
			}
			return true
		}
	}
	switch len(conds) {
	case 0:
	case 1:
		out.cond = conds[0]
	default:
		out.cond = conds
	}
	return out
}

// Render возвращает условие с позиционными плейсхолдерами PostgreSQL ($1, $2, ...).
func Render[T any](s Spec[T]) (string, []any, error) {
	query, args, err := s.ToSql()
	if err != nil {
		return "", nil, err
	}
	query, err = sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}
