package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/schemagov/modules/schemas/domain/topic"
	"github.com/iota-uz/schemagov/pkg/composables"
)

type TopicRepository struct{}

func NewTopicRepository() topic.Repository {
	return &TopicRepository{}
}

func (r *TopicRepository) Owner(ctx context.Context, tenantID int, topicName string) (*topic.Ownership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	o := topic.Ownership{TenantID: tenantID, TopicName: topicName}
	err = tx.QueryRow(ctx,
		`SELECT team_id FROM topics WHERE tenant_id = $1 AND topic_name = $2`,
		tenantID, topicName,
	).Scan(&o.TeamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, topic.ErrNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "topic owner")
	}
	return &o, nil
}
