package classroom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/pkg/config"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

// Client fetches courses, rosters, coursework and submissions from the
// classroom REST API. All list calls follow nextPageToken pagination
// until the upstream stops returning a token.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a classroom API client.
func NewClient(cfg config.ClassroomConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.AccessToken,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type courseWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Section     string `json:"section"`
	CourseState string `json:"courseState"`
}

type studentWire struct {
	UserID  string `json:"userId"`
	Profile struct {
		Name struct {
			FullName string `json:"fullName"`
		} `json:"name"`
		EmailAddress string `json:"emailAddress"`
	} `json:"profile"`
}

type courseworkWire struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	CreationTime string   `json:"creationTime"`
	MaxPoints    *float64 `json:"maxPoints"`
}

type submissionWire struct {
	CourseWorkID  string   `json:"courseWorkId"`
	UserID        string   `json:"userId"`
	State         string   `json:"state"`
	Late          bool     `json:"late"`
	AssignedGrade *float64 `json:"assignedGrade"`
}

// ListCourses returns every active course visible to the configured token.
func (c *Client) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	err := c.paginate(ctx, "/courses", url.Values{"courseStates": []string{"ACTIVE"}}, func(body []byte) (string, error) {
		var page struct {
			Courses       []courseWire `json:"courses"`
			NextPageToken string       `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode courses page: %w", err)
		}
		for _, w := range page.Courses {
			courses = append(courses, models.Course{
				ID:      w.ID,
				Name:    w.Name,
				Section: w.Section,
				State:   w.CourseState,
			})
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// ListStudents returns the roster of a course.
func (c *Client) ListStudents(ctx context.Context, courseID string) ([]models.Student, error) {
	var students []models.Student
	path := fmt.Sprintf("/courses/%s/students", url.PathEscape(courseID))
	err := c.paginate(ctx, path, nil, func(body []byte) (string, error) {
		var page struct {
			Students      []studentWire `json:"students"`
			NextPageToken string        `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode students page: %w", err)
		}
		for _, w := range page.Students {
			students = append(students, models.Student{
				ID:       w.UserID,
				FullName: w.Profile.Name.FullName,
				Email:    w.Profile.EmailAddress,
			})
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return students, nil
}

// ListCoursework returns a course's coursework, optionally narrowed to
// items created inside the [start, end] window. A nil bound leaves that
// side open.
func (c *Client) ListCoursework(ctx context.Context, courseID string, start, end *time.Time) ([]models.CourseworkItem, error) {
	var items []models.CourseworkItem
	path := fmt.Sprintf("/courses/%s/courseWork", url.PathEscape(courseID))
	err := c.paginate(ctx, path, nil, func(body []byte) (string, error) {
		var page struct {
			CourseWork    []courseworkWire `json:"courseWork"`
			NextPageToken string           `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode coursework page: %w", err)
		}
		for _, w := range page.CourseWork {
			created, err := time.Parse(time.RFC3339, w.CreationTime)
			if err != nil {
				c.logger.Warn("skipping coursework with unparsable creation time",
					zap.String("coursework_id", w.ID), zap.String("creation_time", w.CreationTime))
				continue
			}
			if start != nil && created.Before(*start) {
				continue
			}
			if end != nil && created.After(*end) {
				continue
			}
			items = append(items, models.CourseworkItem{
				ID:           w.ID,
				Title:        w.Title,
				CreationTime: created,
				MaxPoints:    w.MaxPoints,
			})
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListSubmissions returns every student submission for a coursework item.
// Passing "-" as courseworkID fetches submissions across all coursework.
func (c *Client) ListSubmissions(ctx context.Context, courseID, courseworkID string) ([]models.Submission, error) {
	if courseworkID == "" {
		courseworkID = "-"
	}
	var subs []models.Submission
	path := fmt.Sprintf("/courses/%s/courseWork/%s/studentSubmissions",
		url.PathEscape(courseID), url.PathEscape(courseworkID))
	err := c.paginate(ctx, path, nil, func(body []byte) (string, error) {
		var page struct {
			StudentSubmissions []submissionWire `json:"studentSubmissions"`
			NextPageToken      string           `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode submissions page: %w", err)
		}
		for _, w := range page.StudentSubmissions {
			subs = append(subs, models.Submission{
				CourseworkID:  w.CourseWorkID,
				StudentID:     w.UserID,
				State:         models.SubmissionState(w.State),
				Late:          w.Late,
				AssignedGrade: w.AssignedGrade,
			})
		}
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// paginate repeatedly GETs path until the page callback returns an
// empty nextPageToken.
func (c *Client) paginate(ctx context.Context, path string, base url.Values, onPage func([]byte) (string, error)) error {
	pageToken := ""
	for {
		query := url.Values{}
		for k, vs := range base {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
		query.Set("pageSize", strconv.Itoa(c.pageSize))
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		body, err := c.get(ctx, path, query)
		if err != nil {
			return err
		}

		next, err := onPage(body)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		pageToken = next
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build classroom request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "classroom request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read classroom response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom resource not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, appErrors.Clone(appErrors.ErrUpstream, "classroom rejected the access token")
	case resp.StatusCode >= 300:
		c.logger.Warn("classroom request failed",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, appErrors.Clone(appErrors.ErrUpstream, fmt.Sprintf("classroom returned status %d", resp.StatusCode))
	}

	return body, nil
}
