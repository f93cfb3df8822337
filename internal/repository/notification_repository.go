package repository

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"

	"futures/internal/models"
)

var notifJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// NotificationRepository - работа с таблицей notifications
//
// Хранит журнал событий жизненного цикла позиций: исполнения,
// закрытия, ликвидации, отмены, отказы по марже.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create создает новое уведомление
func (r *NotificationRepository) Create(n *models.Notification) error {
	query := `
		INSERT INTO notifications (timestamp, type, severity, account_id, position_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var meta []byte
	if n.Meta != nil {
		var err error
		meta, err = notifJSON.Marshal(n.Meta)
		if err != nil {
			return err
		}
	}

	return r.db.QueryRow(
		query,
		n.Timestamp,
		n.Type,
		n.Severity,
		n.AccountID,
		n.PositionID,
		n.Message,
		meta,
	).Scan(&n.ID)
}

// GetRecent возвращает последние N уведомлений аккаунта
func (r *NotificationRepository) GetRecent(accountID string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, account_id, position_id, message, meta
		FROM notifications
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var meta sql.NullString
		err := rows.Scan(
			&n.ID,
			&n.Timestamp,
			&n.Type,
			&n.Severity,
			&n.AccountID,
			&n.PositionID,
			&n.Message,
			&meta,
		)
		if err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := notifJSON.UnmarshalFromString(meta.String, &n.Meta); err != nil {
				return nil, err
			}
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

// DeleteOlderThan удаляет уведомления старше указанной даты
func (r *NotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE timestamp < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
