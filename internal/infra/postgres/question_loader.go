package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizduel-service/internal/domain"
)

const publishedStatus = "published"

// QuestionLoader loads questions and question sets from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

const questionColumns = `id, prompt, options, correct_option_id, topic, difficulty, status`

func (l *QuestionLoader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, questionID)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

// LoadQuestionSet returns the question ids of a set in position order.
func (l *QuestionLoader) LoadQuestionSet(ctx context.Context, setID string) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT question_id FROM question_set_items WHERE set_id=$1 ORDER BY position`, setID)
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question set: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	if len(ids) == 0 {
		return nil, domain.ErrQuestionSetNotFound
	}
	return ids, nil
}

// SampleQuestions picks up to count random published questions matching filter.
func (l *QuestionLoader) SampleQuestions(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE status=$1
		  AND ($2='' OR topic=$2)
		  AND ($3='' OR difficulty=$3)
		ORDER BY random()
		LIMIT $4`, publishedStatus, filter.Topic, filter.Difficulty, count)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0, count)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	return questions, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q       domain.Question
		options []byte
		status  string
	)
	if err := row.Scan(&q.ID, &q.Prompt, &options, &q.CorrectOptionID, &q.Topic, &q.Difficulty, &status); err != nil {
		return domain.Question{}, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	q.Published = status == publishedStatus
	return q, nil
}
