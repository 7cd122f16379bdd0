package precomputed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// preparedFile is the layout of a curated answers file:
//
//	{"questions": [{"id": 1, "question": "...", "answer": "...", "category": "technical"}]}
type preparedFile struct {
	Questions []preparedQuestion `json:"questions"`
}

type preparedQuestion struct {
	ID       any    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

func (q preparedQuestion) storeID() string {
	switch v := q.ID.(type) {
	case string:
		if v != "" {
			return "prepared_" + v
		}
	case float64:
		return "prepared_" + strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "prepared_" + strconv.FormatUint(xxhash.Sum64String(q.Question)%100000000, 10)
}

// LoadPrepared adds curated answers read from r. Ids already present are
// skipped. Returns the number of answers added.
func (s *Store) LoadPrepared(ctx context.Context, r io.Reader) (int, error) {
	var file preparedFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("decode prepared answers: %w", err)
	}

	loaded := 0
	for _, q := range file.Questions {
		id := q.storeID()
		if s.Has(id) {
			continue
		}
		_, err := s.Add(ctx, Answer{
			ID:       id,
			Question: q.Question,
			Answer:   q.Answer,
			Category: q.Category,
		})
		if errors.Is(err, ErrEmptyAnswer) {
			s.log.Warn().Str("id", id).Msg("Skipping prepared answer without question or answer")
			continue
		}
		if err != nil {
			return loaded, err
		}
		loaded++
	}

	s.log.Info().Int("loaded", loaded).Int("total", s.Len()).Msg("Prepared answers loaded")
	return loaded, nil
}

// LoadPreparedFile is LoadPrepared for a path. A missing file loads nothing.
func (s *Store) LoadPreparedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info().Str("path", path).Msg("No prepared answers file")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.LoadPrepared(ctx, f)
}
