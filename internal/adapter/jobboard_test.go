package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

const jobSearchPage = `<!DOCTYPE html>
<html><body>
<table>
  <tr><td class="width16em">13010-12345678</td></tr>
  <tr><td class="width16em">13010-87654321</td></tr>
</table>
<input type="submit" name="fwListNaviBtnNext" value="次へ">
</body></html>`

const jobSearchLastPage = `<!DOCTYPE html>
<html><body>
<table><tr><td class="width16em">13010-99999999</td></tr></table>
<input type="submit" name="fwListNaviBtnNext" value="次へ" disabled>
</body></html>`

const jobDetailPage = `<!DOCTYPE html>
<html><body>
<div id="ID_kjNo">13010-12345678</div>
<div id="ID_hoNinNo">1234567890123</div>
<div id="ID_uktkYmd">令和8年8月1日</div>
<div id="ID_shkiKigenHi">令和8年10月31日</div>
<div id="ID_jgshMei">テスト株式会社</div>
<div id="ID_jgshMeiKana">テストカブシキガイシャ</div>
<div id="ID_szciYbn">〒100-0005</div>
<div id="ID_szci">東京都千代田区丸の内1-2-3</div>
<a id="ID_hp" href="https://example.co.jp">ホームページ</a>
<div id="ID_sksu">ソフトウェア開発技術者</div>
<div id="ID_shigotoNy">自社サービスの開発</div>
<div id="ID_koyoKeitai">正社員</div>
<div id="ID_hakenUkeoiToShgKeitai">派遣・請負ではない</div>
<div id="ID_khky">250,000円〜400,000円</div>
<div id="ID_shgJn1">9時00分〜18時00分</div>
<div id="ID_kyukeiJn">60分</div>
<div id="ID_nenkanKjsu">125日</div>
<div id="ID_shoyoSdNoUmu">あり</div>
<div id="ID_mycarTskn">可</div>
<div id="ID_nenreiSegnHanni">18歳〜59歳</div>
<div id="ID_tnseiTeinenNenrei">60歳</div>
<div id="ID_saiyoNinsu">3人</div>
<div id="ID_knyHoken">雇用 労災 健康 厚生</div>
</body></html>`

func TestJobBoardSessionCaptureAndReplay(t *testing.T) {
	t.Parallel()

	var replayed string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("JSESSIONID"); err == nil {
			replayed = cookie.Value
		}
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
		}
		_, _ = w.Write([]byte(jobSearchPage))
	}))
	defer srv.Close()

	a := NewJobBoardAdapter(JobBoardConfig{SearchURL: srv.URL, DetailURL: srv.URL}, srv.Client(), nil)

	sess, err := a.InitSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc123", sess.ID)

	numbers, hasNext, err := a.SearchPage(context.Background(), sess, 0)
	require.NoError(t, err)
	require.Equal(t, "abc123", replayed, "search must replay the captured session")
	require.Equal(t, []string{"1301012345678", "1301087654321"}, numbers)
	require.True(t, hasNext)
}

func TestJobBoardSearchPageZeroSubmitsSearch(t *testing.T) {
	t.Parallel()

	var firstForm, secondForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("fwListNowPage") == "0" {
			firstForm = r.PostForm
			_, _ = w.Write([]byte(jobSearchPage))
			return
		}
		secondForm = r.PostForm
		_, _ = w.Write([]byte(jobSearchLastPage))
	}))
	defer srv.Close()

	a := NewJobBoardAdapter(JobBoardConfig{SearchURL: srv.URL, OccupationCode: "09,4"}, srv.Client(), nil)
	sess := &Session{ID: "s"}

	_, hasNext, err := a.SearchPage(context.Background(), sess, 0)
	require.NoError(t, err)
	require.True(t, hasNext)
	require.Equal(t, "検索", firstForm.Get("searchBtn"))
	require.Equal(t, "09,4", firstForm.Get("kiboSuruSKSU1Hidden"))

	numbers, hasNext, err := a.SearchPage(context.Background(), sess, 1)
	require.NoError(t, err)
	require.False(t, hasNext, "disabled next control ends pagination")
	require.Equal(t, []string{"1301099999999"}, numbers)
	require.Empty(t, secondForm.Get("searchBtn"))
}

func TestJobBoardFetchCandidate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "dispDetailBtn", r.URL.Query().Get("action"))
		require.Equal(t, "1301012345678", r.URL.Query().Get("kJNo"))
		_, _ = w.Write([]byte(jobDetailPage))
	}))
	defer srv.Close()

	a := NewJobBoardAdapter(JobBoardConfig{DetailURL: srv.URL}, srv.Client(), nil)
	cand, err := a.FetchCandidate(context.Background(), "1301012345678")
	require.NoError(t, err)

	require.Equal(t, "1234567890123", cand.Company.CorporateNumber)
	require.Equal(t, "テスト株式会社", cand.Company.Name)
	require.Equal(t, "テスト", cand.Company.NormalizedName)
	require.Equal(t, "https://example.co.jp", cand.Company.SourceURL)
	require.Nil(t, cand.Observation, "the job board carries no insured counts")

	require.NotNil(t, cand.Listing)
	l := cand.Listing
	require.Equal(t, "1301012345678", l.JobNumber)
	require.Equal(t, "100-0005", l.CompanyPostalCode)
	require.Equal(t, "ソフトウェア開発技術者", l.Title)
	require.False(t, l.IsDispatch)
	require.NotNil(t, l.ReceptionDate)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), *l.ReceptionDate)

	require.NotNil(t, l.BaseSalaryMin)
	require.Equal(t, 250000, *l.BaseSalaryMin)
	require.NotNil(t, l.BaseSalaryMax)
	require.Equal(t, 400000, *l.BaseSalaryMax)
	require.Equal(t, "09:00", l.WorkHoursStart)
	require.Equal(t, "18:00", l.WorkHoursEnd)
	require.NotNil(t, l.BreakMinutes)
	require.Equal(t, 60, *l.BreakMinutes)
	require.NotNil(t, l.AnnualHolidays)
	require.Equal(t, 125, *l.AnnualHolidays)
	require.True(t, l.BonusSystem)
	require.True(t, l.CarCommute)
	require.NotNil(t, l.AgeLimitMin)
	require.Equal(t, 18, *l.AgeLimitMin)
	require.NotNil(t, l.AgeLimitMax)
	require.Equal(t, 59, *l.AgeLimitMax)
	require.NotNil(t, l.RetirementAge)
	require.Equal(t, 60, *l.RetirementAge)
	require.NotNil(t, l.HiringCount)
	require.Equal(t, 3, *l.HiringCount)
	require.Equal(t, "雇用 労災 健康 厚生", l.Insurance)
}

func TestJobBoardListingWithoutCorporateNumberIsNotFound(t *testing.T) {
	t.Parallel()

	page := `<html><body><div id="ID_kjNo">13010-00000001</div><div id="ID_jgshMei">個人商店</div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	a := NewJobBoardAdapter(JobBoardConfig{DetailURL: srv.URL}, srv.Client(), nil)
	_, err := a.FetchCandidate(context.Background(), "1301000000001")
	require.ErrorIs(t, err, pipeline.ErrNotFound)
}
