package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"EcoTrackBackend/internal/model"
)

// ErrNotFound возвращается при отсутствии записи
var ErrNotFound = errors.New("record not found")

// ErrUnavailable возвращается, когда хранилище недоступно (таймаут или обрыв соединения)
var ErrUnavailable = errors.New("store unavailable")

// SortRelevance и другие константы задают допустимые режимы сортировки поиска
const (
	SortRelevance  = "relevance"
	SortCarbonAsc  = "carbon_asc"
	SortCarbonDesc = "carbon_desc"
)

// SearchParams содержит параметры поиска по каталогу товаров
// Categories и EcoScores внутри себя объединяются по ИЛИ, между собой — по И
type SearchParams struct {
	Query      string
	Categories []string
	EcoScores  []string
	Page       int
	Limit      int
	SortBy     string
}

// worstGrade и worstFootprint — сентинелы для товара-образца без оценки:
// отсутствующая эко-оценка считается худшей, отсутствующий след — очень большим
const worstGrade = "Z"

const worstFootprint = 999999.0

// ProductRepository реализует доступ к коллекции товаров в MongoDB
type ProductRepository struct {
	coll *mongo.Collection
}

// NewProductRepository создает новый репозиторий каталога товаров
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection("products")}
}

// EnsureIndexes создает индексы коллекции товаров:
// уникальный по barcode, взвешенный текстовый по имени/брендам/категориям,
// одиночные по эко-оценке и следу, составной по категориям и оценке
func (r *ProductRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "barcode", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "product_name", Value: "text"},
				{Key: "brands", Value: "text"},
				{Key: "categories", Value: "text"},
			},
			Options: options.Index().
				SetName("product_search_text").
				SetWeights(bson.D{
					{Key: "product_name", Value: 10},
					{Key: "brands", Value: 5},
					{Key: "categories", Value: 1},
				}),
		},
		{Keys: bson.D{{Key: "ecoscore_grade", Value: 1}}},
		{Keys: bson.D{{Key: "carbon_footprint", Value: 1}}},
		{Keys: bson.D{{Key: "categories", Value: 1}, {Key: "ecoscore_grade", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

// buildSearchPipeline собирает два агрегационных конвейера по параметрам поиска:
// конвейер страницы результатов (с сортировкой, проекцией и пагинацией)
// и конвейер точного подсчета полного отфильтрованного набора
// Фильтры применяются до сортировки и до пагинации: текстовый поиск сужает
// набор первым, затем пересечение с фильтрами категорий и эко-оценок
func buildSearchPipeline(p SearchParams) (mongo.Pipeline, mongo.Pipeline) {
	pipeline := mongo.Pipeline{}
	query := strings.TrimSpace(p.Query)

	// текстовый поиск, если задан запрос
	if query != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{
			{Key: "$text", Value: bson.D{{Key: "$search", Value: query}}},
		}}})
		// добавляем релевантность для сортировки
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "textScore"}}},
		}}})
	}

	// фильтры категорий (регистронезависимое вхождение, ИЛИ по набору)
	// и эко-оценок (точное совпадение, ИЛИ по набору)
	match := bson.D{}
	if len(p.Categories) > 0 {
		patterns := make(bson.A, 0, len(p.Categories))
		for _, c := range p.Categories {
			patterns = append(patterns, primitive.Regex{Pattern: regexp.QuoteMeta(c), Options: "i"})
		}
		match = append(match, bson.E{Key: "categories", Value: bson.D{{Key: "$in", Value: patterns}}})
	}
	if len(p.EcoScores) > 0 {
		grades := make(bson.A, 0, len(p.EcoScores))
		for _, g := range p.EcoScores {
			grades = append(grades, g)
		}
		match = append(match, bson.E{Key: "ecoscore_grade", Value: bson.D{{Key: "$in", Value: grades}}})
	}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	// сортировка: релевантность по убыванию при запросе, иначе имя по возрастанию;
	// carbon_asc и carbon_desc действуют независимо от наличия запроса
	var sort bson.D
	switch p.SortBy {
	case SortCarbonAsc:
		sort = bson.D{{Key: "carbon_footprint", Value: 1}}
	case SortCarbonDesc:
		sort = bson.D{{Key: "carbon_footprint", Value: -1}}
	default:
		if query != "" {
			sort = bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "textScore"}}}}
		} else {
			sort = bson.D{{Key: "product_name", Value: 1}}
		}
	}
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sort}})

	// фиксированная проекция полей ответа
	project := bson.D{
		{Key: "_id", Value: 1},
		{Key: "barcode", Value: 1},
		{Key: "product_name", Value: 1},
		{Key: "brands", Value: 1},
		{Key: "categories", Value: 1},
		{Key: "ecoscore_grade", Value: 1},
		{Key: "carbon_footprint", Value: 1},
		{Key: "last_updated", Value: 1},
	}
	if query != "" {
		project = append(project, bson.E{Key: "score", Value: bson.D{{Key: "$meta", Value: "textScore"}}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: project}})

	// конвейер подсчета: тот же отфильтрованный набор без пагинации
	countPipeline := make(mongo.Pipeline, len(pipeline), len(pipeline)+1)
	copy(countPipeline, pipeline)
	countPipeline = append(countPipeline, bson.D{{Key: "$count", Value: "total"}})

	// пагинация только в конвейере страницы
	skip := (p.Page - 1) * p.Limit
	pipeline = append(pipeline, bson.D{{Key: "$skip", Value: skip}})
	pipeline = append(pipeline, bson.D{{Key: "$limit", Value: p.Limit}})

	return pipeline, countPipeline
}

// Search выполняет поиск товаров с фильтрами, сортировкой и пагинацией
// Страница результатов и точный total считаются параллельно над одним набором
// Возвращает список товаров и общее количество записей полного набора
func (r *ProductRepository) Search(ctx context.Context, p SearchParams) ([]model.Product, int, error) {
	pagePipeline, countPipeline := buildSearchPipeline(p)

	var products []model.Product
	var total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = r.aggregateProducts(gctx, pagePipeline)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.aggregateCount(gctx, countPipeline)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, wrapStoreErr("search products", err)
	}
	return products, total, nil
}

// withFootprintMatch отбирает товары с присутствующим положительным следом
func withFootprintMatch() bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "carbon_footprint", Value: bson.D{
			{Key: "$exists", Value: true},
			{Key: "$ne", Value: nil},
			{Key: "$gt", Value: 0},
		}},
	}}}
}

// WithFootprint возвращает страницу товаров с известным углеродным следом,
// отсортированных по следу по возрастанию, и точный total набора
func (r *ProductRepository) WithFootprint(ctx context.Context, page, limit int) ([]model.Product, int, error) {
	skip := (page - 1) * limit
	pipeline := mongo.Pipeline{
		withFootprintMatch(),
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "barcode", Value: 1},
			{Key: "product_name", Value: 1},
			{Key: "brands", Value: 1},
			{Key: "categories", Value: 1},
			{Key: "ecoscore_grade", Value: 1},
			{Key: "carbon_footprint", Value: 1},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "carbon_footprint", Value: 1}}}},
		bson.D{{Key: "$skip", Value: skip}},
		bson.D{{Key: "$limit", Value: limit}},
	}
	countPipeline := mongo.Pipeline{
		withFootprintMatch(),
		bson.D{{Key: "$count", Value: "total"}},
	}

	var products []model.Product
	var total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = r.aggregateProducts(gctx, pipeline)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.aggregateCount(gctx, countPipeline)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, wrapStoreErr("get products with footprint", err)
	}
	return products, total, nil
}

// FindByBarcode возвращает товар по уникальному штрихкоду
// Отсутствие товара — нормальный исход, сигнализируется через ErrNotFound
func (r *ProductRepository) FindByBarcode(ctx context.Context, barcode string) (*model.Product, error) {
	var p model.Product
	err := r.coll.FindOne(ctx, bson.D{{Key: "barcode", Value: barcode}}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, wrapStoreErr("barcode lookup", err)
	}
	return &p, nil
}

// Stats выполняет единый $facet-проход с четырьмя независимыми агрегатами:
// общее число товаров, распределение по эко-оценкам (в порядке оценок),
// топ-10 категорий по числу товаров (список категорий разворачивается),
// и сводка avg/min/max/count по товарам с положительным следом
// Пустая ветвь агрегата деградирует до нулевого значения, а не до ошибки
func (r *ProductRepository) Stats(ctx context.Context) (*model.CatalogStats, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$facet", Value: bson.D{
			{Key: "totalProducts", Value: bson.A{
				bson.D{{Key: "$count", Value: "count"}},
			}},
			{Key: "ecoScoreDistribution", Value: bson.A{
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: "$ecoscore_grade"},
					{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
				}}},
				bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
			}},
			{Key: "topCategories", Value: bson.A{
				bson.D{{Key: "$unwind", Value: "$categories"}},
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: "$categories"},
					{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
				}}},
				bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
				bson.D{{Key: "$limit", Value: 10}},
			}},
			{Key: "carbonFootprintStats", Value: bson.A{
				withFootprintMatch(),
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: nil},
					{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$carbon_footprint"}}},
					{Key: "min", Value: bson.D{{Key: "$min", Value: "$carbon_footprint"}}},
					{Key: "max", Value: bson.D{{Key: "$max", Value: "$carbon_footprint"}}},
					{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
				}}},
			}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapStoreErr("get catalog stats", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var raw []struct {
		TotalProducts []struct {
			Count int `bson:"count"`
		} `bson:"totalProducts"`
		EcoScoreDistribution []model.GradeCount    `bson:"ecoScoreDistribution"`
		TopCategories        []model.CategoryCount `bson:"topCategories"`
		CarbonFootprintStats []model.CarbonStats   `bson:"carbonFootprintStats"`
	}
	if err := cur.All(ctx, &raw); err != nil {
		return nil, wrapStoreErr("decode catalog stats", err)
	}

	stats := &model.CatalogStats{
		EcoScoreDistribution: []model.GradeCount{},
		TopCategories:        []model.CategoryCount{},
	}
	if len(raw) == 0 {
		return stats, nil
	}
	if len(raw[0].TotalProducts) > 0 {
		stats.TotalProducts = raw[0].TotalProducts[0].Count
	}
	if raw[0].EcoScoreDistribution != nil {
		stats.EcoScoreDistribution = raw[0].EcoScoreDistribution
	}
	if raw[0].TopCategories != nil {
		stats.TopCategories = raw[0].TopCategories
	}
	if len(raw[0].CarbonFootprintStats) > 0 {
		stats.CarbonFootprintStats = raw[0].CarbonFootprintStats[0]
	}
	return stats, nil
}

// buildAlternativesPipeline собирает конвейер подбора альтернатив товару-образцу:
// другой товар подходит, если делит с образцом хотя бы одну категорию
// И либо имеет строго лучшую эко-оценку, либо строго меньший след
func buildAlternativesPipeline(seed *model.Product, limit int) mongo.Pipeline {
	grade := seed.EcoscoreGrade
	if grade == "" {
		grade = worstGrade
	}
	footprint := worstFootprint
	if seed.CarbonFootprint != nil {
		footprint = *seed.CarbonFootprint
	}
	categories := make(bson.A, 0, len(seed.Categories))
	for _, c := range seed.Categories {
		categories = append(categories, c)
	}

	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: seed.ID}}},
			{Key: "categories", Value: bson.D{{Key: "$in", Value: categories}}},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "ecoscore_grade", Value: bson.D{{Key: "$lt", Value: grade}}}},
				bson.D{{Key: "carbon_footprint", Value: bson.D{
					{Key: "$lt", Value: footprint},
					{Key: "$exists", Value: true},
					{Key: "$ne", Value: nil},
				}}},
			}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "barcode", Value: 1},
			{Key: "product_name", Value: 1},
			{Key: "brands", Value: 1},
			{Key: "ecoscore_grade", Value: 1},
			{Key: "carbon_footprint", Value: 1},
		}}},
		bson.D{{Key: "$limit", Value: limit}},
	}
}

// Alternatives возвращает до limit товаров, более экологичных, чем образец
// Несуществующий или некорректный id образца дает пустой список без ошибки
func (r *ProductRepository) Alternatives(ctx context.Context, productID string, limit int) ([]model.Product, error) {
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return []model.Product{}, nil
	}

	var seed model.Product
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&seed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []model.Product{}, nil
		}
		return nil, wrapStoreErr("alternatives seed lookup", err)
	}

	products, err := r.aggregateProducts(ctx, buildAlternativesPipeline(&seed, limit))
	if err != nil {
		return nil, wrapStoreErr("get alternatives", err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// aggregateProducts выполняет конвейер и декодирует результат в список товаров
func (r *ProductRepository) aggregateProducts(ctx context.Context, pipeline mongo.Pipeline) ([]model.Product, error) {
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var products []model.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// aggregateCount выполняет конвейер с завершающим $count и возвращает total
// Пустой результат означает нулевой отфильтрованный набор
func (r *ProductRepository) aggregateCount(ctx context.Context, pipeline mongo.Pipeline) (int, error) {
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var res []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0].Total, nil
}

// wrapStoreErr оборачивает ошибку хранилища именем отказавшей операции
// Таймауты и обрывы соединения сводятся к ErrUnavailable
func wrapStoreErr(op string, err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}
