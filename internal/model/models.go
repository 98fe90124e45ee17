package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product представляет товар каталога (коллекция products в MongoDB)
// CarbonFootprint опционален: nil означает, что оценка следа отсутствует
type Product struct {
	ID              primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Barcode         string                 `bson:"barcode" json:"barcode"`
	ProductName     string                 `bson:"product_name" json:"product_name"`
	Brands          []string               `bson:"brands,omitempty" json:"brands,omitempty"`
	Categories      []string               `bson:"categories,omitempty" json:"categories,omitempty"`
	EcoscoreGrade   string                 `bson:"ecoscore_grade,omitempty" json:"ecoscore_grade,omitempty"`
	CarbonFootprint *float64               `bson:"carbon_footprint,omitempty" json:"carbon_footprint,omitempty"`
	NutritionInfo   map[string]interface{} `bson:"nutrition_info,omitempty" json:"nutrition_info,omitempty"`
	LastUpdated     time.Time              `bson:"last_updated,omitempty" json:"last_updated,omitempty"`
	// Score — релевантность текстового поиска, заполняется только при непустом запросе
	Score float64 `bson:"score,omitempty" json:"score,omitempty"`
}

// Pagination представляет метаданные страницы для списочных ответов
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	HasMore    bool `json:"hasMore"`
	TotalPages int  `json:"totalPages"`
}

// GradeCount представляет количество товаров для одной эко-оценки
type GradeCount struct {
	Grade string `bson:"_id" json:"grade"`
	Count int    `bson:"count" json:"count"`
}

// CategoryCount представляет количество товаров в одной категории таксономии
type CategoryCount struct {
	Category string `bson:"_id" json:"category"`
	Count    int    `bson:"count" json:"count"`
}

// CarbonStats представляет сводку по углеродному следу товаров
type CarbonStats struct {
	Avg   float64 `bson:"avg" json:"avg"`
	Min   float64 `bson:"min" json:"min"`
	Max   float64 `bson:"max" json:"max"`
	Count int     `bson:"count" json:"count"`
}

// CatalogStats объединяет четыре независимых агрегата статистики каталога
type CatalogStats struct {
	TotalProducts        int             `json:"totalProducts"`
	EcoScoreDistribution []GradeCount    `json:"ecoScoreDistribution"`
	TopCategories        []CategoryCount `json:"topCategories"`
	CarbonFootprintStats CarbonStats     `json:"carbonFootprintStats"`
}

// FootprintEntry представляет запись журнала углеродного следа (таблица footprints)
// Ровно одно из полей ProductBarcode и ManualItem должно быть заполнено:
// запись либо ссылается на товар каталога, либо описана вручную
type FootprintEntry struct {
	ID             int       `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ProductBarcode *string   `db:"product_barcode" json:"product_barcode,omitempty"`
	ManualItem     *string   `db:"manual_item" json:"manual_item,omitempty"`
	Amount         float64   `db:"amount" json:"amount"`
	CarbonTotal    float64   `db:"carbon_total" json:"carbon_total"`
	Category       string    `db:"category" json:"category"`
	LoggedAt       time.Time `db:"logged_at" json:"logged_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Goal представляет цель пользователя по снижению следа (таблица goals)
// На пару (user_id, timeframe) существует не более одной цели
type Goal struct {
	ID          int       `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	TargetValue float64   `db:"target_value" json:"target_value"`
	Timeframe   string    `db:"timeframe" json:"timeframe"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PeriodBucket представляет агрегат записей за один календарный период
// Period — ISO-дата понедельника недели или ключ YYYY-MM для месяца
type PeriodBucket struct {
	Period      string             `json:"period"`
	TotalCarbon float64            `json:"total_carbon"`
	Count       int                `json:"count"`
	Categories  map[string]float64 `json:"categories"`
}

// CategorySlice представляет вклад одной категории в разбивке по категориям
type CategorySlice struct {
	Category   string  `json:"category"`
	Value      float64 `json:"value"`
	Percentage int     `json:"percentage"`
}

// ValidCategories перечисляет допустимые категории записей журнала
var ValidCategories = []string{"food", "transport", "energy", "shopping", "misc"}

// ValidTimeframes перечисляет допустимые периоды агрегации и целей
var ValidTimeframes = []string{"weekly", "monthly"}

// IsValidCategory проверяет, что категория входит в список допустимых
func IsValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// IsValidTimeframe проверяет, что период входит в список допустимых
func IsValidTimeframe(tf string) bool {
	for _, v := range ValidTimeframes {
		if v == tf {
			return true
		}
	}
	return false
}
