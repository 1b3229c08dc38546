package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridstream-data/common/database"
	commonlogger "gridstream-data/common/logger"
	"gridstream-data/internal/cache"
	"gridstream-data/internal/config"
	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"
	"gridstream-data/internal/service"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// XLSX 批量回填工具
// 表头固定列：nodeId, sourceId, created (RFC3339)；
// 属性列以 i:/a:/s: 前缀命名，tags 列为分号分隔列表
// 数据经独立连接池 COPY 导入，不占用交互查询连接
func main() {
	fileFlag := flag.String("file", "", "XLSX workbook to import")
	sheetFlag := flag.String("sheet", "", "sheet name (default: first sheet)")
	flag.Parse()

	if *fileFlag == "" {
		log.Fatal("Usage: import-datum -file <workbook.xlsx> [-sheet <name>]")
	}

	cfg := config.Load()
	logger, err := commonlogger.NewLogger(cfg.Log.Level, "console", "import-datum")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	bulkDB, err := database.NewBulkLoadDB(&cfg.Database, cfg.BulkLoadMaxConns)
	if err != nil {
		log.Fatalf("Failed to create bulk-load pool: %v", err)
	}
	defer bulkDB.Close()

	streamsRepo := repository.NewPostgresStreamsRepository(db)
	datumRepo := repository.NewPostgresDatumRepository(db, bulkDB)
	resolver := service.NewStreamResolver(streamsRepo,
		cache.Config{Capacity: cfg.Cache.MetaCapacity, TTL: cfg.Cache.MetaTTL},
		cache.Config{Capacity: cfg.Cache.IDCapacity, TTL: cfg.Cache.IDTTL},
		logger,
	)

	wb, err := excelize.OpenFile(*fileFlag)
	if err != nil {
		log.Fatalf("Failed to open workbook: %v", err)
	}
	defer wb.Close()

	sheet := *sheetFlag
	if sheet == "" {
		sheet = wb.GetSheetName(0)
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		log.Fatalf("Failed to read sheet %s: %v", sheet, err)
	}
	if len(rows) < 2 {
		log.Fatal("Workbook has no data rows")
	}

	header, err := parseHeader(rows[0])
	if err != nil {
		log.Fatalf("Invalid header row: %v", err)
	}

	ctx := context.Background()
	datumCh := make(chan *domain.Datum, 256)
	errCh := make(chan error, 1)
	var loaded int64

	go func() {
		n, err := datumRepo.BulkLoad(ctx, datumCh)
		loaded = n
		errCh <- err
	}()

	var skipped int
	for i, row := range rows[1:] {
		d, err := parseRow(ctx, resolver, header, row)
		if err != nil {
			logger.Warn("Skipping invalid row",
				zap.Int("row", i+2),
				zap.Error(err),
			)
			skipped++
			continue
		}
		datumCh <- d
	}
	close(datumCh)

	if err := <-errCh; err != nil {
		log.Fatalf("Bulk load failed: %v", err)
	}
	fmt.Printf("Imported %d datum rows (%d skipped)\n", loaded, skipped)
}

// headerLayout 表头列布局
type headerLayout struct {
	nodeCol   int
	sourceCol int
	tsCol     int
	tagsCol   int

	instCols map[int]string // 列下标 -> 属性名
	accuCols map[int]string
	statCols map[int]string
}

func parseHeader(cells []string) (*headerLayout, error) {
	h := &headerLayout{
		nodeCol:   -1,
		sourceCol: -1,
		tsCol:     -1,
		tagsCol:   -1,
		instCols:  make(map[int]string),
		accuCols:  make(map[int]string),
		statCols:  make(map[int]string),
	}
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		switch {
		case name == "nodeId":
			h.nodeCol = i
		case name == "sourceId":
			h.sourceCol = i
		case name == "created":
			h.tsCol = i
		case name == "tags":
			h.tagsCol = i
		case strings.HasPrefix(name, "i:"):
			h.instCols[i] = name[2:]
		case strings.HasPrefix(name, "a:"):
			h.accuCols[i] = name[2:]
		case strings.HasPrefix(name, "s:"):
			h.statCols[i] = name[2:]
		}
	}
	if h.nodeCol < 0 || h.sourceCol < 0 || h.tsCol < 0 {
		return nil, fmt.Errorf("header must contain nodeId, sourceId and created columns")
	}
	return h, nil
}

func parseRow(ctx context.Context, resolver *service.StreamResolver, h *headerLayout, cells []string) (*domain.Datum, error) {
	cell := func(i int) string {
		if i >= 0 && i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	nodeID, err := strconv.ParseInt(cell(h.nodeCol), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid node ID: %w", err)
	}
	sourceID := cell(h.sourceCol)
	if sourceID == "" {
		return nil, fmt.Errorf("missing source ID")
	}
	ts, err := time.Parse(time.RFC3339, cell(h.tsCol))
	if err != nil {
		return nil, fmt.Errorf("invalid created timestamp: %w", err)
	}

	instVals, err := collectFloats(h.instCols, cell)
	if err != nil {
		return nil, err
	}
	accuVals, err := collectFloats(h.accuCols, cell)
	if err != nil {
		return nil, err
	}
	statVals := collectStrings(h.statCols, cell)

	stream, err := resolver.ResolveForWrite(ctx, domain.StreamIdentity{
		Kind:     domain.ObjectKindNode,
		ObjectID: nodeID,
		SourceID: sourceID,
	}, "")
	if err != nil {
		return nil, err
	}
	// 首见属性名落库，保证槽位对齐到持久化的名称顺序
	stream, err = resolver.EnsureNames(ctx, stream,
		sortedKeys(instVals), sortedKeys(accuVals), sortedStringKeys(statVals))
	if err != nil {
		return nil, err
	}

	d := &domain.Datum{
		StreamID:      stream.StreamID,
		Timestamp:     ts.UTC(),
		Instantaneous: alignFloats(instVals, stream.NamesInstantaneous),
		Accumulating:  alignFloats(accuVals, stream.NamesAccumulating),
		Status:        alignStrings(statVals, stream.NamesStatus),
		Received:      time.Now().UTC(),
	}

	if tags := cell(h.tagsCol); tags != "" {
		for _, t := range strings.Split(tags, ";") {
			if t = strings.TrimSpace(t); t != "" {
				d.Tags = append(d.Tags, t)
			}
		}
	}
	return d, nil
}

// collectFloats 解析前缀列为属性名到数值的映射
func collectFloats(cols map[int]string, cell func(int) string) (map[string]float64, error) {
	vals := make(map[string]float64)
	for col, name := range cols {
		v := cell(col)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value for %s: %w", name, err)
		}
		vals[name] = f
	}
	return vals, nil
}

func collectStrings(cols map[int]string, cell func(int) string) map[string]string {
	vals := make(map[string]string)
	for col, name := range cols {
		if v := cell(col); v != "" {
			vals[name] = v
		}
	}
	return vals
}

// alignFloats 严格按流属性名顺序对齐为位置数组
func alignFloats(vals map[string]float64, names []string) []*float64 {
	if len(vals) == 0 || len(names) == 0 {
		return nil
	}
	out := make([]*float64, len(names))
	for i, name := range names {
		if v, ok := vals[name]; ok {
			val := v
			out[i] = &val
		}
	}
	return out
}

func alignStrings(vals map[string]string, names []string) []*string {
	if len(vals) == 0 || len(names) == 0 {
		return nil
	}
	out := make([]*string, len(names))
	for i, name := range names {
		if v, ok := vals[name]; ok {
			val := v
			out[i] = &val
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
