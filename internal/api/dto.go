package api

import "github.com/starford/reblog/internal/models"

// PostDetail is the full post response type (aliased from the domain layer).
type PostDetail = models.Post

// PostListItem is a lightweight item in a list response.
type PostListItem = models.Summary

// PostListResponse wraps post listings.
type PostListResponse struct {
	Posts []PostListItem `json:"posts" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// TOCResponse carries the rendered table of contents of one post.
type TOCResponse struct {
	ID  string `json:"id" example:"hello-world" validate:"required"`
	TOC string `json:"toc" example:"<ul><li><a href='javascript:scrollTo(\"intro\")'>Intro</a></li></ul>"`
}
