package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStreamsRepository 流元数据Repository实现
type PostgresStreamsRepository struct {
	db *sql.DB
}

// NewPostgresStreamsRepository 创建流元数据Repository
func NewPostgresStreamsRepository(db *sql.DB) *PostgresStreamsRepository {
	return &PostgresStreamsRepository{db: db}
}

// 确保实现了接口
var _ StreamsRepository = (*PostgresStreamsRepository)(nil)

// 列顺序契约（scanStream 按此顺序读取）：
// stream_id, kind, object_id, source_id, names_i, names_a, names_s,
// jdata, country, region, postal_code, latitude, longitude, elevation,
// time_zone, created_at
const streamColumns = `
	s.stream_id,
	s.kind,
	s.object_id,
	s.source_id,
	s.names_i,
	s.names_a,
	s.names_s,
	s.jdata,
	s.country,
	s.region,
	s.postal_code,
	s.latitude,
	s.longitude,
	s.elevation,
	s.time_zone,
	s.created_at
`

type streamRowScanner interface {
	Scan(dest ...interface{}) error
}

// kindValue 对象类型的存储字符
func kindValue(k domain.ObjectKind) string {
	return string([]byte{byte(k)})
}

// scanStream 扫描单条流元数据记录
func scanStream(row streamRowScanner) (*domain.Stream, error) {
	var s domain.Stream
	var kind string
	var namesI, namesA, namesS pq.StringArray
	var jdata []byte
	var country, region, postalCode sql.NullString
	var latitude, longitude, elevation sql.NullFloat64

	err := row.Scan(
		&s.StreamID,
		&kind,
		&s.ObjectID,
		&s.SourceID,
		&namesI,
		&namesA,
		&namesS,
		&jdata,
		&country,
		&region,
		&postalCode,
		&latitude,
		&longitude,
		&elevation,
		&s.TimeZone,
		&s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan datum_streams: %w", err)
	}

	k, err := domain.ParseObjectKind(kind)
	if err != nil {
		return nil, err
	}
	s.Kind = k
	s.NamesInstantaneous = namesI
	s.NamesAccumulating = namesA
	s.NamesStatus = namesS

	if country.Valid {
		s.Country = country.String
	}
	if region.Valid {
		s.Region = region.String
	}
	if postalCode.Valid {
		s.PostalCode = postalCode.String
	}
	if latitude.Valid {
		v := latitude.Float64
		s.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		s.Longitude = &v
	}
	if elevation.Valid {
		v := elevation.Float64
		s.Elevation = &v
	}
	if len(jdata) > 0 {
		if err := json.Unmarshal(jdata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse stream metadata document: %w", err)
		}
	}

	return &s, nil
}

// GetStream 按 stream_id 获取流元数据
func (r *PostgresStreamsRepository) GetStream(ctx context.Context, streamID uuid.UUID) (*domain.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM datum_streams s WHERE s.stream_id = $1`
	return scanStream(r.db.QueryRowContext(ctx, query, streamID))
}

// FindStreamByIdentity 按自然键查找流；不存在返回 ErrNotFound
func (r *PostgresStreamsRepository) FindStreamByIdentity(ctx context.Context, identity domain.StreamIdentity) (*domain.Stream, error) {
	query := `SELECT ` + streamColumns + `
		FROM datum_streams s
		WHERE s.kind = $1 AND s.object_id = $2 AND s.source_id = $3`
	return scanStream(r.db.QueryRowContext(ctx, query,
		kindValue(identity.Kind), identity.ObjectID, identity.SourceID))
}

// CreateStreamIfAbsent 原子的 insert-or-fetch
// INSERT .. ON CONFLICT DO NOTHING 落败（并发竞态或已存在）时回读胜者，
// 保证并发解析同一标识的所有调用者观察到同一个 stream_id
func (r *PostgresStreamsRepository) CreateStreamIfAbsent(ctx context.Context, identity domain.StreamIdentity, timeZone string) (*domain.Stream, error) {
	if timeZone == "" {
		timeZone = "UTC"
	}

	query := `
		INSERT INTO datum_streams AS s (stream_id, kind, object_id, source_id, time_zone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, object_id, source_id) DO NOTHING
		RETURNING ` + streamColumns

	newID := uuid.New()
	stream, err := scanStream(r.db.QueryRowContext(ctx, query,
		newID, kindValue(identity.Kind), identity.ObjectID, identity.SourceID, timeZone))
	if err == nil {
		return stream, nil
	}
	if !IsNotFound(err) && !IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert datum stream: %w", err)
	}

	// 插入落败：行已存在或输给了并发插入，回读竞争胜者
	stream, err = r.FindStreamByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to re-fetch datum stream after insert race: %w", err)
	}
	return stream, nil
}

// AppendStreamNames 追加缺失的属性名到流的名称列表尾部
// 只追加列表尚未包含的名称，既有名称与顺序不动；
// 并发追加在行锁上串行化，UPDATE 重读已提交行后重算缺失集合，不会产生重复项
func (r *PostgresStreamsRepository) AppendStreamNames(ctx context.Context, streamID uuid.UUID, namesI, namesA, namesS []string) (*domain.Stream, error) {
	query := `
		UPDATE datum_streams AS s SET
			names_i = coalesce(s.names_i, '{}') || (
				SELECT coalesce(array_agg(n ORDER BY n), '{}') FROM unnest($2::text[]) AS n
				WHERE NOT n = ANY(coalesce(s.names_i, '{}'))),
			names_a = coalesce(s.names_a, '{}') || (
				SELECT coalesce(array_agg(n ORDER BY n), '{}') FROM unnest($3::text[]) AS n
				WHERE NOT n = ANY(coalesce(s.names_a, '{}'))),
			names_s = coalesce(s.names_s, '{}') || (
				SELECT coalesce(array_agg(n ORDER BY n), '{}') FROM unnest($4::text[]) AS n
				WHERE NOT n = ANY(coalesce(s.names_s, '{}')))
		WHERE s.stream_id = $1
		RETURNING ` + streamColumns

	stream, err := scanStream(r.db.QueryRowContext(ctx, query, streamID,
		pq.Array(namesI), pq.Array(namesA), pq.Array(namesS)))
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to append stream property names: %w", err)
	}
	return stream, nil
}

// ListStreams 按对象/源ID集合列出流
func (r *PostgresStreamsRepository) ListStreams(ctx context.Context, kind domain.ObjectKind, objectIDs []int64, sourceIDs []string) ([]*domain.Stream, error) {
	query := `SELECT ` + streamColumns + `
		FROM datum_streams s
		WHERE s.kind = $1 AND s.object_id = ANY($2)`
	args := []interface{}{kindValue(kind), pq.Array(objectIDs)}

	if len(sourceIDs) > 0 {
		query += ` AND s.source_id = ANY($3)`
		args = append(args, pq.Array(sourceIDs))
	}
	query += ` ORDER BY s.object_id, s.source_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query datum streams: %w", err)
	}
	defer rows.Close()

	var results []*domain.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return results, nil
}
