package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trainhub_go/models"
	"trainhub_go/storage"
	"trainhub_go/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Broadcaster pushes live events to connected websocket clients.
type Broadcaster interface {
	BroadcastToRoles(roles []models.Role, message interface{})
}

// ActivityEntry describes one audited mutation.
type ActivityEntry struct {
	Action     string
	Resource   string
	ResourceID uint
	Summary    string
	Details    interface{}
	IPAddress  string
	UserAgent  string
}

// ActivityEvent is the websocket payload for a recorded entry.
type ActivityEvent struct {
	Type string             `json:"type"`
	Item utils.ActivityItem `json:"item"`
}

// ActivityService persists the audit trail, feeds the dashboard and
// archives old rows to object storage.
type ActivityService struct {
	db    *gorm.DB
	hub   Broadcaster
	store storage.ObjectStore
	now   func() time.Time

	onRecord []func(context.Context)
}

func NewActivityService(db *gorm.DB, hub Broadcaster, store storage.ObjectStore) *ActivityService {
	return &ActivityService{db: db, hub: hub, store: store, now: time.Now}
}

// OnRecord registers fn to run after every stored entry.
func (s *ActivityService) OnRecord(fn func(context.Context)) {
	s.onRecord = append(s.onRecord, fn)
}

// Record stores the entry. Failures are logged, never returned: the
// mutation being audited has already committed.
func (s *ActivityService) Record(ctx context.Context, ident Identity, e ActivityEntry) {
	details, err := json.Marshal(map[string]interface{}{
		"summary": e.Summary,
		"data":    e.Details,
	})
	if err != nil {
		details = []byte(`{}`)
	}

	entry := models.ActivityLog{
		UserID:     ident.UserID,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Details:    datatypes.JSON(details),
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"action":   e.Action,
			"resource": e.Resource,
			"user_id":  ident.UserID,
		}).Error("Failed to save activity log")
		return
	}
	for _, fn := range s.onRecord {
		fn(ctx)
	}

	if s.hub != nil {
		item := s.render(entry, s.actorName(ctx, ident.UserID))
		s.hub.BroadcastToRoles([]models.Role{models.RoleAdmin, models.RoleInstructor}, ActivityEvent{
			Type: "activity",
			Item: item,
		})
	}
}

// Recent returns the latest entries rendered for the dashboard feed.
func (s *ActivityService) Recent(ctx context.Context, limit int) ([]utils.ActivityItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var logs []models.ActivityLog
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, errors.Wrap(err, "load activity logs")
	}

	names, err := s.actorNames(ctx, logs)
	if err != nil {
		return nil, err
	}
	items := make([]utils.ActivityItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, s.render(l, names[l.UserID]))
	}
	return items, nil
}

func (s *ActivityService) actorName(ctx context.Context, userID uint) string {
	if userID == 0 {
		return ""
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "name").First(&user, userID).Error; err != nil {
		return ""
	}
	return user.Name
}

func (s *ActivityService) actorNames(ctx context.Context, logs []models.ActivityLog) (map[uint]string, error) {
	ids := make([]uint, 0, len(logs))
	for _, l := range logs {
		if l.UserID != 0 {
			ids = append(ids, l.UserID)
		}
	}
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "load activity actors")
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func (s *ActivityService) render(l models.ActivityLog, actor string) utils.ActivityItem {
	if actor == "" {
		actor = "Someone"
	}
	var details struct {
		Summary string `json:"summary"`
	}
	_ = json.Unmarshal(l.Details, &details)

	msg := details.Summary
	if msg == "" {
		msg = fmt.Sprintf("%s %s #%d", activityVerb(l.Action), l.Resource, l.ResourceID)
	}
	return utils.ActivityItem{
		ID:         l.ID,
		Message:    actor + " " + msg,
		Time:       utils.HumanizeSince(l.CreatedAt, s.now()),
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		CreatedAt:  l.CreatedAt,
	}
}

func activityVerb(action string) string {
	switch action {
	case "CREATE":
		return "created"
	case "UPDATE":
		return "updated"
	case "DELETE":
		return "deleted"
	case "OPTIN":
		return "opted in to"
	case "OPTOUT":
		return "opted out of"
	case "MARK":
		return "marked attendance for"
	case "ARCHIVE":
		return "archived"
	default:
		return "changed"
	}
}

// LogFilter narrows the admin audit log listing.
type LogFilter struct {
	UserID   uint
	Action   string
	Resource string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// LogPage is one page of audit rows.
type LogPage struct {
	Logs       []models.ActivityLog `json:"logs"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int64                `json:"total_pages"`
}

// Query pages through the raw audit trail, newest first.
func (s *ActivityService) Query(ctx context.Context, f LogFilter) (*LogPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.Resource != "" {
		query = query.Where("resource = ?", f.Resource)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at < ?", f.To.Add(24*time.Hour))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count activity logs")
	}
	logs := make([]models.ActivityLog, 0, f.Limit)
	err := query.Order("created_at DESC, id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, errors.Wrap(err, "load activity logs")
	}

	return &LogPage{
		Logs:       logs,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + int64(f.Limit) - 1) / int64(f.Limit),
	}, nil
}

// Archives lists uploaded archive batches, newest first.
func (s *ActivityService) Archives(ctx context.Context) ([]models.LogArchive, error) {
	archives := make([]models.LogArchive, 0)
	if err := s.db.WithContext(ctx).Order("to_date DESC, id DESC").Find(&archives).Error; err != nil {
		return nil, errors.Wrap(err, "load log archives")
	}
	return archives, nil
}

// CanArchive reports whether object storage is configured.
func (s *ActivityService) CanArchive() bool { return s.store != nil }

// ArchivedLog is the exported representation stored inside archives
type ArchivedLog struct {
	ID         uint            `json:"id"`
	UserID     uint            `json:"user_id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID uint            `json:"resource_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent"`
	CreatedAt  time.Time       `json:"created_at"`
}

// archiveBatchSize bounds each read so a large backlog never turns into
// a single oversized query.
const archiveBatchSize = 1000

// ArchiveOlderThan zips logs older than days into object storage and
// removes them from the database. It returns the archive record, or nil
// when nothing was old enough.
func (s *ActivityService) ArchiveOlderThan(ctx context.Context, days int) (*models.LogArchive, error) {
	if s.store == nil {
		return nil, errors.New("object storage is not configured")
	}
	if days < 7 {
		return nil, errors.New("minimum archive age is 7 days")
	}
	cutoff := s.now().AddDate(0, 0, -days)

	var (
		archived []ArchivedLog
		lastID   uint
		from, to time.Time
	)
	for {
		var batch []models.ActivityLog
		err := s.db.WithContext(ctx).
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id ASC").
			Limit(archiveBatchSize).
			Find(&batch).Error
		if err != nil {
			return nil, errors.Wrap(err, "load logs to archive")
		}
		for _, l := range batch {
			archived = append(archived, ArchivedLog{
				ID:         l.ID,
				UserID:     l.UserID,
				Action:     l.Action,
				Resource:   l.Resource,
				ResourceID: l.ResourceID,
				Details:    json.RawMessage(l.Details),
				IPAddress:  l.IPAddress,
				UserAgent:  l.UserAgent,
				CreatedAt:  l.CreatedAt,
			})
			if from.IsZero() || l.CreatedAt.Before(from) {
				from = l.CreatedAt
			}
			if l.CreatedAt.After(to) {
				to = l.CreatedAt
			}
			lastID = l.ID
		}
		if len(batch) < archiveBatchSize {
			break
		}
	}
	if len(archived) == 0 {
		return nil, nil
	}

	fileName := fmt.Sprintf("activity_logs_%s_%s.json", from.Format("20060102"), to.Format("20060102"))
	buf, err := zipJSON(fileName, archived)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("archives/activity/%d/%02d/%s.zip", to.Year(), to.Month(), uuid.NewString())
	if _, err := s.store.Put(ctx, key, buf.Bytes(), "application/zip"); err != nil {
		return nil, err
	}

	record := &models.LogArchive{
		FileName:  fileName + ".zip",
		S3Key:     key,
		FromDate:  from,
		ToDate:    to,
		LogCount:  len(archived),
		SizeBytes: int64(buf.Len()),
	}
	// Rows written after the scan may share the cutoff window; lastID keeps
	// the delete to exactly what went into the archive.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.ActivityLog{}).Error
	})
	if err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			logrus.WithError(derr).WithField("key", key).Warn("Failed to remove orphaned log archive")
		}
		return nil, errors.Wrap(err, "record log archive")
	}

	logrus.WithFields(logrus.Fields{
		"count": len(archived),
		"key":   key,
		"bytes": buf.Len(),
	}).Info("Archived activity logs")
	return record, nil
}

func zipJSON(name string, v interface{}) (*bytes.Buffer, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal archive")
	}
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	w, err := zw.Create(name)
	if err != nil {
		return nil, errors.Wrap(err, "create zip entry")
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "write zip entry")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip")
	}
	return buf, nil
}
