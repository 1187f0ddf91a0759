package catalog

import "time"

// Book は books テーブルの1行を表す
type Book struct {
	ID              string    `db:"id"`
	Title           string    `db:"title"`
	Author          string    `db:"author"`
	ISBN            string    `db:"isbn"`
	PublishedDate   time.Time `db:"published_date"`
	CopiesAvailable int       `db:"copies_available"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// 一覧取得用の検索条件。名前付きの条件は AND、Search はタイトル/著者/ISBN の OR
type BookFilter struct {
	Available       *bool
	CopiesAvailable *int
	Title           string
	Author          string
	ISBN            string
	Search          string
}

// 部分更新用。nil のフィールドは変更しない
type BookPatch struct {
	Title           *string
	Author          *string
	ISBN            *string
	PublishedDate   *time.Time
	CopiesAvailable *int
}
