package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/viacep"
)

const praca = `{
	"cep": "01001-000",
	"logradouro": "Praça da Sé",
	"complemento": "lado ímpar",
	"unidade": "",
	"bairro": "Sé",
	"localidade": "São Paulo",
	"uf": "SP",
	"estado": "São Paulo",
	"regiao": "Sudeste",
	"ibge": "3550308",
	"gia": "1004",
	"ddd": "11",
	"siafi": "7107"
}`

func TestInspect_SeededRecordWinsOverFailingUpstream(t *testing.T) {
	t.Parallel()

	ceps := newFakeCeps()
	ceps.seed("12345-678", model.Attributes{Street: sp("Test Street")})
	up := &fakeFetcher{err: errs.ErrLookupFailed}
	s := NewLookupService(ceps, up, zaptest.NewLogger(t))

	for _, in := range []string{"12345678", "12345-678", " 12.345-678 "} {
		rec, err := s.Inspect(context.Background(), in)
		if err != nil {
			t.Fatalf("Inspect(%q): %v", in, err)
		}
		if rec.Code != "12345-678" || rec.Street == nil || *rec.Street != "Test Street" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
	if up.calls.Load() != 0 {
		t.Fatalf("upstream must not be called on a hit, calls=%d", up.calls.Load())
	}
	if len(ceps.upserts) != 0 {
		t.Fatalf("hit must not rewrite the record")
	}
}

func TestInspect_MissFetchesAndStoresOnce(t *testing.T) {
	t.Parallel()

	ceps := newFakeCeps()
	up := &fakeFetcher{byDigits: map[string]*viacep.Payload{"01001000": payload(t, praca)}}
	s := NewLookupService(ceps, up, nil)

	rec, err := s.Inspect(context.Background(), "01001000")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if rec.Code != "01001-000" {
		t.Fatalf("code=%q", rec.Code)
	}
	if len(ceps.upserts) != 1 {
		t.Fatalf("want exactly one upsert, got %d", len(ceps.upserts))
	}
	a := ceps.upserts[0]
	for name, got := range map[string]*string{
		"logradouro": a.Street, "complemento": a.Complement, "unidade": a.Unit, "bairro": a.Neighborhood,
		"localidade": a.Locality, "uf": a.RegionCode, "estado": a.RegionName, "regiao": a.MacroRegion,
		"ibge": a.IBGE, "gia": a.GIA, "ddd": a.AreaCode, "siafi": a.SIAFI,
	} {
		if got == nil {
			t.Fatalf("field %s not projected", name)
		}
	}
	if *a.Street != "Praça da Sé" || *a.Unit != "" || *a.SIAFI != "7107" {
		t.Fatalf("bad projection: %+v", a)
	}

	// second call is served from the store
	if _, err := s.Inspect(context.Background(), "01001-000"); err != nil {
		t.Fatalf("Inspect(2): %v", err)
	}
	if up.calls.Load() != 1 || len(ceps.upserts) != 1 {
		t.Fatalf("second lookup must hit the store: calls=%d upserts=%d", up.calls.Load(), len(ceps.upserts))
	}
}

func TestInspect_UpstreamFailureIsNotFoundAndNotStored(t *testing.T) {
	t.Parallel()

	ceps := newFakeCeps()
	up := &fakeFetcher{byDigits: map[string]*viacep.Payload{}}
	s := NewLookupService(ceps, up, zaptest.NewLogger(t))

	_, err := s.Inspect(context.Background(), "00000000")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if len(ceps.upserts) != 0 || len(ceps.byCode) != 0 {
		t.Fatalf("failure must not persist anything")
	}

	// a later lookup asks the provider again
	_, _ = s.Inspect(context.Background(), "00000000")
	if up.calls.Load() != 2 {
		t.Fatalf("failures must not be cached, calls=%d", up.calls.Load())
	}
}

func TestInspect_InvalidInputTouchesNothing(t *testing.T) {
	t.Parallel()

	ceps := newFakeCeps()
	up := &fakeFetcher{}
	s := NewLookupService(ceps, up, nil)

	for _, in := range []string{"", "123", "123456789", "abcdefgh"} {
		if _, err := s.Inspect(context.Background(), in); !errors.Is(err, errs.ErrInvalidFormat) {
			t.Fatalf("Inspect(%q): want ErrInvalidFormat, got %v", in, err)
		}
	}
	if ceps.finds != 0 || up.calls.Load() != 0 {
		t.Fatalf("invalid input reached store/upstream: finds=%d calls=%d", ceps.finds, up.calls.Load())
	}
}

func TestInspect_StoreErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")

	ceps := newFakeCeps()
	ceps.findErr = boom
	up := &fakeFetcher{}
	if _, err := NewLookupService(ceps, up, nil).Inspect(context.Background(), "01001000"); !errors.Is(err, boom) {
		t.Fatalf("want find error, got %v", err)
	}
	if up.calls.Load() != 0 {
		t.Fatalf("store failure must not fall through to upstream")
	}

	ceps = newFakeCeps()
	ceps.upsertErr = boom
	up = &fakeFetcher{byDigits: map[string]*viacep.Payload{"01001000": payload(t, praca)}}
	_, err := NewLookupService(ceps, up, nil).Inspect(context.Background(), "01001000")
	if !errors.Is(err, boom) || errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want upsert error, got %v", err)
	}
}

func TestInspect_ConcurrentMissesShareOneFetch(t *testing.T) {
	t.Parallel()

	ceps := newFakeCeps()
	up := &fakeFetcher{
		byDigits: map[string]*viacep.Payload{"01001000": payload(t, praca)},
		release:  make(chan struct{}),
	}
	s := NewLookupService(ceps, up, nil)

	const n = 8
	var wg sync.WaitGroup
	errc := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Inspect(context.Background(), "01001-000")
			errc <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(up.release)
	wg.Wait()
	close(errc)

	for err := range errc {
		if err != nil {
			t.Fatalf("Inspect: %v", err)
		}
	}
	if up.calls.Load() != 1 || len(ceps.upserts) != 1 {
		t.Fatalf("want one fetch and one upsert, got calls=%d upserts=%d", up.calls.Load(), len(ceps.upserts))
	}
}

func TestInspect_CallerCancelStopsWaiting(t *testing.T) {
	t.Parallel()

	ceps := newFakeCeps()
	up := &fakeFetcher{
		byDigits: map[string]*viacep.Payload{"01001000": payload(t, praca)},
		release:  make(chan struct{}),
	}
	s := NewLookupService(ceps, up, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Inspect(ctx, "01001000"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	close(up.release)
}
