// =============================================================================
// notion.go - Notion データベースへのミラー
// =============================================================================
//
// 今回の実行で新しく追加された記事を Notion のデータベースにも登録する。
// 編集部が Notion 上で記事を選別・メモするための補助機能で、公開データセット
// （articles.json）の正はあくまでファイル側。
//
// 【必要な環境変数】
//   NOTION_TOKEN        - Notion Integration Token
//   NOTION_DATABASE_ID  - 登録先データベースID
//
// 【データベースのプロパティ】
//
//	Title      (title)      原語のタイトル
//	Title ES   (rich text)  翻訳（あれば）
//	URL        (url)        識別キー
//	Source     (select)     ソース名
//	Published  (date)       公開日時（不明なら省略）
//
// 1件の登録失敗は警告のみ。残りの記事の登録は続ける。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// Notion のリッチテキスト1要素の上限
const notionTextLimit = 2000

// pageCreator is the part of the Notion page API the mirror needs.
type pageCreator interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// NotionMirror copies newly added records into a Notion database.
type NotionMirror struct {
	pages pageCreator
	dbID  notionapi.DatabaseID
}

// NewNotionMirror creates a mirror for an existing database.
func NewNotionMirror(token, databaseID string) (*NotionMirror, error) {
	if token == "" {
		return nil, fmt.Errorf("NOTION_TOKEN is required")
	}
	if databaseID == "" {
		return nil, fmt.Errorf("NOTION_DATABASE_ID is required")
	}
	client := notionapi.NewClient(notionapi.Token(token))
	return &NotionMirror{pages: client.Page, dbID: notionapi.DatabaseID(databaseID)}, nil
}

// Mirror creates one page per record and returns how many succeeded.
func (nm *NotionMirror) Mirror(ctx context.Context, records []Record) (int, error) {
	var (
		created int
		errs    []error
	)
	for _, r := range records {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := nm.pages.Create(ctx, nm.pageRequest(r)); err != nil {
			warnf("failed to mirror %s to Notion: %v", r.URL, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.URL, err))
			continue
		}
		created++
	}
	return created, errors.Join(errs...)
}

// pageRequest builds the page for one record.
func (nm *NotionMirror) pageRequest(r Record) *notionapi.PageCreateRequest {
	properties := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(r.Title),
		},
		"URL": notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  r.URL,
		},
	}

	if r.Source != "" {
		// select の選択肢にカンマは使えない
		properties["Source"] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: strings.ReplaceAll(r.Source, ",", " ")},
		}
	}
	if r.TitleTranslated != "" {
		properties["Title ES"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(r.TitleTranslated),
		}
	}
	if t, err := time.Parse(time.RFC3339, r.PublishedAt); err == nil {
		start := notionapi.Date(t)
		properties["Published"] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &start},
		}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: nm.dbID,
		},
		Properties: properties,
	}
}

// richText wraps s as a single Notion rich text element.
func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: truncateString(s, notionTextLimit)}},
	}
}
