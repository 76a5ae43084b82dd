package domain

import "time"

// Blog is a long-form post written by an account.
type Blog struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Tags      []Tag     `json:"tags,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Question is a Q&A entry answered through threaded comments.
type Question struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Tags        []Tag     `json:"tags,omitempty" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Comment is a reply to a question, threaded via ParentID.
type Comment struct {
	ID         int64     `json:"id" db:"id"`
	Content    string    `json:"content" db:"content"`
	UserID     int64     `json:"user_id" db:"user_id"`
	QuestionID int64     `json:"question_id" db:"question_id"`
	ParentID   *int64    `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Tag labels blogs and questions.
type Tag struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// QuestionVote is a +1/-1 vote, unique per user and question.
type QuestionVote struct {
	ID         int64 `json:"id" db:"id"`
	Value      int   `json:"value" db:"value"`
	UserID     int64 `json:"user_id" db:"user_id"`
	QuestionID int64 `json:"question_id" db:"question_id"`
}

// CommentVote is a +1/-1 vote, unique per user and comment.
type CommentVote struct {
	ID        int64 `json:"id" db:"id"`
	Value     int   `json:"value" db:"value"`
	UserID    int64 `json:"user_id" db:"user_id"`
	CommentID int64 `json:"comment_id" db:"comment_id"`
}
