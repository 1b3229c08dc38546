package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	commonmqtt "gridstream-data/common/mqtt"
	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"
	"gridstream-data/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer datum 落库后的通知回调
// 在接收协程内同步调用，实现方不得阻塞
type Observer interface {
	DatumStored(stream *domain.Stream, d *domain.Datum)
}

// NodeRegistry 节点归属查询；未注册节点返回 repository.ErrNotFound
type NodeRegistry interface {
	GetNodeOwnership(ctx context.Context, nodeID int64) (*service.NodeOwnership, error)
}

var _ NodeRegistry = (*service.OwnershipClient)(nil)

// IngestorConfig 接收管道配置
type IngestorConfig struct {
	// NodeTopicTemplate 节点主题模板，{nodeId} 为占位符
	NodeTopicTemplate string
	// QoS 订阅服务质量
	QoS byte
	// TransientTries 瞬态存储错误的尝试次数上限（含首次）
	TransientTries int
}

// generalDatum 通用对象形态的消息体
// 属性按名称分组；__type__ 区分形态
type generalDatum struct {
	Type     string             `json:"__type__"`
	Created  int64              `json:"created"` // epoch 毫秒
	SourceID string             `json:"sourceId"`
	I        map[string]float64 `json:"i"`
	A        map[string]float64 `json:"a"`
	S        map[string]string  `json:"s"`
	T        []string           `json:"t"`
}

// DatumIngestor MQTT 接收管道
// 每条消息独立处理：单条失败只丢该条，不影响后续消息；
// 重连后通过 Resubscribe 恢复订阅
type DatumIngestor struct {
	client   *commonmqtt.Client
	resolver *service.StreamResolver
	writer   *service.DatumWriter
	registry NodeRegistry
	cfg      IngestorConfig
	logger   *zap.Logger

	// topicPattern 从主题中提取节点ID
	topicPattern *regexp.Regexp

	mu        sync.RWMutex
	observers map[int64]map[Observer]struct{}
}

// NewDatumIngestor 创建接收管道
func NewDatumIngestor(resolver *service.StreamResolver, writer *service.DatumWriter, registry NodeRegistry, cfg IngestorConfig, logger *zap.Logger) (*DatumIngestor, error) {
	if registry == nil {
		return nil, fmt.Errorf("node registry is required")
	}
	if cfg.NodeTopicTemplate == "" {
		cfg.NodeTopicTemplate = "node/{nodeId}/datum"
	}
	if cfg.TransientTries <= 0 {
		cfg.TransientTries = 3
	}
	if !strings.Contains(cfg.NodeTopicTemplate, "{nodeId}") {
		return nil, fmt.Errorf("node topic template must contain {nodeId}: %q", cfg.NodeTopicTemplate)
	}

	pattern := "^" + strings.Replace(regexp.QuoteMeta(cfg.NodeTopicTemplate), regexp.QuoteMeta("{nodeId}"), `(\d+)`, 1) + "$"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile topic pattern: %w", err)
	}

	return &DatumIngestor{
		resolver:     resolver,
		writer:       writer,
		registry:     registry,
		cfg:          cfg,
		logger:       logger,
		topicPattern: re,
		observers:    make(map[int64]map[Observer]struct{}),
	}, nil
}

// SetClient 绑定 MQTT 客户端（客户端构造时需要 onConnect 回调，两者互相引用）
func (g *DatumIngestor) SetClient(client *commonmqtt.Client) {
	g.client = client
}

// Resubscribe 订阅全部节点主题；连接建立（含重连）后调用
func (g *DatumIngestor) Resubscribe() {
	if g.client == nil {
		return
	}
	filter := strings.Replace(g.cfg.NodeTopicTemplate, "{nodeId}", "+", 1)
	if err := g.client.Subscribe(filter, g.cfg.QoS, g.HandleMessage); err != nil {
		g.logger.Error("Failed to subscribe to node datum topic",
			zap.String("filter", filter),
			zap.Error(err),
		)
		return
	}
	g.logger.Info("Subscribed to node datum topic", zap.String("filter", filter))
}

// RegisterObserver 注册某节点的落库通知
func (g *DatumIngestor) RegisterObserver(nodeID int64, obs Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.observers[nodeID]
	if !ok {
		set = make(map[Observer]struct{})
		g.observers[nodeID] = set
	}
	set[obs] = struct{}{}
}

// UnregisterObserver 注销某节点的落库通知
func (g *DatumIngestor) UnregisterObserver(nodeID int64, obs Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.observers[nodeID]; ok {
		delete(set, obs)
		if len(set) == 0 {
			delete(g.observers, nodeID)
		}
	}
}

func (g *DatumIngestor) notify(stream *domain.Stream, d *domain.Datum) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for obs := range g.observers[stream.ObjectID] {
		obs.DatumStored(stream, d)
	}
}

// HandleMessage 处理单条 MQTT 消息
// 无效消息丢弃并以 debug 记录原因；存储硬错误返回给调用方记录
func (g *DatumIngestor) HandleMessage(topic string, payload []byte) error {
	nodeID, ok := g.parseNodeID(topic)
	if !ok {
		g.logger.Debug("Dropping message on unrecognized topic", zap.String("topic", topic))
		return nil
	}

	ctx := context.Background()

	// 节点归属核查：未注册或已归档的节点来的消息静默丢弃
	own, err := g.registry.GetNodeOwnership(ctx, nodeID)
	if err != nil {
		if repository.IsNotFound(err) {
			g.logger.Debug("Dropping datum for unregistered node", zap.Int64("node_id", nodeID))
			return nil
		}
		return fmt.Errorf("failed to look up ownership for node %d: %w", nodeID, err)
	}
	if own.Archived {
		g.logger.Debug("Dropping datum for archived node", zap.Int64("node_id", nodeID))
		return nil
	}

	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		return g.handleStreamForm(ctx, nodeID, payload)
	}
	return g.handleGeneralForm(ctx, nodeID, payload)
}

// handleGeneralForm 通用对象形态：自然键定位流，不存在则创建
func (g *DatumIngestor) handleGeneralForm(ctx context.Context, nodeID int64, payload []byte) error {
	var msg generalDatum
	if err := json.Unmarshal(payload, &msg); err != nil {
		g.logger.Debug("Dropping malformed datum payload",
			zap.Int64("node_id", nodeID),
			zap.Error(err),
		)
		return nil
	}
	if msg.Type != "" && msg.Type != "datum" {
		g.logger.Debug("Dropping payload of unsupported type",
			zap.Int64("node_id", nodeID),
			zap.String("type", msg.Type),
		)
		return nil
	}
	if strings.TrimSpace(msg.SourceID) == "" {
		g.logger.Debug("Dropping datum without source ID", zap.Int64("node_id", nodeID))
		return nil
	}

	identity := domain.StreamIdentity{
		Kind:     domain.ObjectKindNode,
		ObjectID: nodeID,
		SourceID: msg.SourceID,
	}
	stream, err := g.resolver.ResolveForWrite(ctx, identity, "")
	if err != nil {
		return fmt.Errorf("failed to resolve stream for node %d source %s: %w", nodeID, msg.SourceID, err)
	}

	// 首见属性名追加到流名称列表并落库，保证槽位语义跨消息稳定
	stream, err = g.resolver.EnsureNames(ctx, stream,
		sortedKeys(msg.I), sortedKeys(msg.A), sortedStringKeys(msg.S))
	if err != nil {
		return fmt.Errorf("failed to extend property names for node %d source %s: %w", nodeID, msg.SourceID, err)
	}

	ts := time.Now().UTC()
	if msg.Created > 0 {
		ts = time.UnixMilli(msg.Created).UTC()
	}
	d := &domain.Datum{
		StreamID:      stream.StreamID,
		Timestamp:     ts,
		Instantaneous: alignFloats(msg.I, stream.NamesInstantaneous),
		Accumulating:  alignFloats(msg.A, stream.NamesAccumulating),
		Status:        alignStrings(msg.S, stream.NamesStatus),
		Tags:          msg.T,
		Received:      time.Now().UTC(),
	}

	return g.store(ctx, stream, d)
}

// handleStreamForm 流 datum 数组形态：[streamId, tsMillis, [i...], [a...], [s...], [tags...]]
// 流必须已存在且归属节点对象，节点ID 与主题一致
func (g *DatumIngestor) handleStreamForm(ctx context.Context, nodeID int64, payload []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || len(raw) < 2 {
		g.logger.Debug("Dropping malformed stream datum payload", zap.Int64("node_id", nodeID))
		return nil
	}

	var idStr string
	var tsMillis int64
	if err := json.Unmarshal(raw[0], &idStr); err != nil {
		g.logger.Debug("Dropping stream datum without stream ID", zap.Int64("node_id", nodeID))
		return nil
	}
	if err := json.Unmarshal(raw[1], &tsMillis); err != nil || tsMillis <= 0 {
		g.logger.Debug("Dropping stream datum without timestamp", zap.Int64("node_id", nodeID))
		return nil
	}
	streamID, err := uuid.Parse(idStr)
	if err != nil {
		g.logger.Debug("Dropping stream datum with invalid stream ID",
			zap.Int64("node_id", nodeID),
			zap.String("stream_id", idStr),
		)
		return nil
	}

	stream, err := g.resolver.GetStream(ctx, streamID)
	if err != nil {
		if repository.IsNotFound(err) {
			g.logger.Debug("Dropping stream datum for unknown stream",
				zap.String("stream_id", streamID.String()),
			)
			return nil
		}
		return fmt.Errorf("failed to look up stream %s: %w", streamID, err)
	}
	if stream.Kind != domain.ObjectKindNode || stream.ObjectID != nodeID {
		g.logger.Debug("Dropping stream datum not owned by topic node",
			zap.String("stream_id", streamID.String()),
			zap.Int64("node_id", nodeID),
		)
		return nil
	}

	d := &domain.Datum{
		StreamID:  streamID,
		Timestamp: time.UnixMilli(tsMillis).UTC(),
		Received:  time.Now().UTC(),
	}
	if len(raw) > 2 {
		_ = json.Unmarshal(raw[2], &d.Instantaneous)
	}
	if len(raw) > 3 {
		_ = json.Unmarshal(raw[3], &d.Accumulating)
	}
	if len(raw) > 4 {
		_ = json.Unmarshal(raw[4], &d.Status)
	}
	if len(raw) > 5 {
		_ = json.Unmarshal(raw[5], &d.Tags)
	}

	return g.store(ctx, stream, d)
}

// store 落库；瞬态存储错误立即重试到次数上限，用尽后丢弃并上报
func (g *DatumIngestor) store(ctx context.Context, stream *domain.Stream, d *domain.Datum) error {
	var err error
	for try := 1; try <= g.cfg.TransientTries; try++ {
		err = g.writer.Write(ctx, stream, d)
		if err == nil {
			g.notify(stream, d)
			return nil
		}
		if !repository.IsTransient(err) {
			break
		}
		g.logger.Warn("Transient error storing datum, retrying",
			zap.String("stream_id", stream.StreamID.String()),
			zap.Int("try", try),
			zap.Error(err),
		)
	}
	return fmt.Errorf("failed to store datum for stream %s: %w", stream.StreamID, err)
}

func (g *DatumIngestor) parseNodeID(topic string) (int64, bool) {
	m := g.topicPattern.FindStringSubmatch(topic)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// alignFloats 将命名属性严格按流的属性名列表对齐为位置数组
// 名称列表由 EnsureNames 先行覆盖消息里的全部键，列表不含的属性名丢弃
func alignFloats(props map[string]float64, names []string) []*float64 {
	if len(props) == 0 || len(names) == 0 {
		return nil
	}
	out := make([]*float64, len(names))
	for i, name := range names {
		if v, ok := props[name]; ok {
			val := v
			out[i] = &val
		}
	}
	return out
}

func alignStrings(props map[string]string, names []string) []*string {
	if len(props) == 0 || len(names) == 0 {
		return nil
	}
	out := make([]*string, len(names))
	for i, name := range names {
		if v, ok := props[name]; ok {
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
