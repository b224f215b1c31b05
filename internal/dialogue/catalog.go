package dialogue

import (
	"regexp"
	"strings"
)

// CatalogEntry describes a bookable treatment as presented to the user.
type CatalogEntry struct {
	Slug        string
	Name        string
	DurationMin int
	Price       string
}

// Catalog is ordered; earlier entries win when text mentions several.
type Catalog []CatalogEntry

// DefaultCatalog is the clinic's standard treatment list.
func DefaultCatalog() Catalog {
	return Catalog{
		{Slug: "botox", Name: "Botox Facial", DurationMin: 60, Price: "desde $150.000"},
		{Slug: "limpieza", Name: "Limpieza Facial", DurationMin: 90, Price: "desde $80.000"},
		{Slug: "rellenos", Name: "Rellenos Dérmicos", DurationMin: 45, Price: "desde $200.000"},
		{Slug: "peeling", Name: "Peeling Químico", DurationMin: 60, Price: "desde $120.000"},
	}
}

// Match returns the first entry whose slug or display name appears in text.
// text must already be lowercased.
func (c Catalog) Match(text string) (CatalogEntry, bool) {
	for _, e := range c {
		if strings.Contains(text, e.Slug) || strings.Contains(text, strings.ToLower(e.Name)) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// Lookup finds an entry by slug.
func (c Catalog) Lookup(slug string) (CatalogEntry, bool) {
	for _, e := range c {
		if e.Slug == slug {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// FAQ is a canned answer for a question pattern.
type FAQ struct {
	Topic   string
	Pattern *regexp.Regexp
	Answer  string
}

// DefaultFAQs are checked in order; the first match answers.
func DefaultFAQs() []FAQ {
	return []FAQ{
		{
			Topic:   "botox_price",
			Pattern: regexp.MustCompile(`(precio|valen|cu[aá]nto).*botox`),
			Answer:  "El Botox facial tiene un valor desde $150.000. ¿Te gustaría reservar una evaluación gratuita?",
		},
		{
			Topic:   "limpieza_price",
			Pattern: regexp.MustCompile(`(precio|valen|cu[aá]nto).*limpieza`),
			Answer:  "La Limpieza Facial tiene un valor desde $80.000. ¿Te gustaría agendar una cita?",
		},
		{
			Topic:   "hours",
			Pattern: regexp.MustCompile(`(horario|abren|cierran)`),
			Answer:  "Atendemos de Lunes a Sábado, 09:00–19:00.",
		},
		{
			Topic:   "address",
			Pattern: regexp.MustCompile(`(direcci[oó]n|d[oó]nde)`),
			Answer:  "Estamos en Av. Ejemplo 1234, Piso 2, Ciudad.",
		},
	}
}
