package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/api/httpx"
	"github.com/velkovb/peerpay-backend/internal/api/validate"
	"github.com/velkovb/peerpay-backend/internal/config"
	"github.com/velkovb/peerpay-backend/internal/metrics"
	"github.com/velkovb/peerpay-backend/internal/middleware"
	"github.com/velkovb/peerpay-backend/internal/models"
	"github.com/velkovb/peerpay-backend/internal/services"
)

const dateLayout = "2006-01-02"

type RouterDeps struct {
	Cfg         config.Config
	UserSvc     *services.UserService
	BalanceSvc  *services.BalanceService
	BudgetSvc   *services.BudgetService
	TransferSvc *services.TransferService
	ReportSvc   *services.ReportService
	Auth        *middleware.AuthMiddleware
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Username string `json:"username"`
				Email    string `json:"email"`
				NameTag  string `json:"name_tag"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
				return
			}
			u, err := d.UserSvc.Register(r.Context(), req.Username, req.Email, req.NameTag, req.Password)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
				return
			}
			httpx.WriteJSON(w, http.StatusCreated, u)
		})

		r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
				return
			}
			pair, err := d.UserSvc.Login(r.Context(), req.Email, req.Password)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, pair)
		})

		// ---------- authenticated ----------
		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Auth)

			r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
				middleware.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					users, err := d.UserSvc.List(r.Context())
					if err != nil {
						httpx.WriteDomainError(w, err)
						return
					}
					httpx.WriteJSON(w, http.StatusOK, users)
				})).ServeHTTP(w, r)
			})

			// name-tag resolution for addressing transfers
			r.Get("/users/{tag}", func(w http.ResponseWriter, r *http.Request) {
				u, err := d.UserSvc.ResolveTag(r.Context(), chi.URLParam(r, "tag"))
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]string{
					"name_tag": u.NameTag,
					"username": u.Username,
				})
			})

			// ---------- balances ----------
			r.Get("/balances", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				out, err := d.BalanceSvc.List(r.Context(), uid)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Get("/balances/{currency}", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				cur, err := models.ParseCurrency(chi.URLParam(r, "currency"))
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				b, err := d.BalanceSvc.Current(r.Context(), uid, cur)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, b)
			})

			// ---------- funds movement ----------
			r.Post("/transfers", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				var req struct {
					RecipientTag string          `json:"recipient_tag"`
					Amount       decimal.Decimal `json:"amount"`
					Currency     string          `json:"currency"`
					Description  string          `json:"description"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
					return
				}
				if errs := fieldErrs(
					validate.Required("recipient_tag", req.RecipientTag),
					validate.Required("currency", req.Currency),
					validate.PositiveAmount("amount", req.Amount),
				); errs != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation", errs.Error(), errs)
					return
				}
				cur, err := models.ParseCurrency(req.Currency)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				tx, err := d.TransferSvc.SendFunds(r.Context(), uid, req.RecipientTag, req.Amount.Round(cur.Decimals()), cur, req.Description)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, tx)
			})

			r.Post("/transfers/requests", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				var req struct {
					CounterpartyTag string          `json:"counterparty_tag"`
					Amount          decimal.Decimal `json:"amount"`
					Currency        string          `json:"currency"`
					Description     string          `json:"description"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
					return
				}
				if e := validate.Required("counterparty_tag", req.CounterpartyTag); e != nil {
					errs := validate.Errs{*e}
					httpx.WriteError(w, http.StatusBadRequest, "validation", errs.Error(), errs)
					return
				}
				tx, err := d.TransferSvc.RequestFunds(r.Context(), uid, req.CounterpartyTag, req.Amount, models.Currency(req.Currency), req.Description)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, tx)
			})

			// asks addressed to the caller as payer
			r.Get("/transfers/requests", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				out, err := d.TransferSvc.ListPendingRequests(r.Context(), uid)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Post("/deposits", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				var card models.CardDetails
				if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
					return
				}
				card.UserID = uid
				if card.Currency.Valid() {
					card.Amount = card.Amount.Round(card.Currency.Decimals())
				}
				tx, err := d.TransferSvc.AddFunds(r.Context(), uid, card)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, tx)
			})

			r.Post("/withdrawals", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				var req struct {
					Amount      decimal.Decimal `json:"amount"`
					Currency    string          `json:"currency"`
					Description string          `json:"description"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
					return
				}
				cur, err := models.ParseCurrency(req.Currency)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				tx, err := d.TransferSvc.WithdrawFunds(r.Context(), uid, req.Amount.Round(cur.Decimals()), cur, req.Description)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, tx)
			})

			// ---------- ledger queries ----------
			r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				limit, offset := 50, 0
				if v := r.URL.Query().Get("limit"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n > 0 {
						limit = n
					}
				}
				if v := r.URL.Query().Get("offset"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n >= 0 {
						offset = n
					}
				}
				txs, err := d.TransferSvc.ListByUser(r.Context(), uid, limit, offset)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, txs)
			})

			r.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				tx, err := d.TransferSvc.GetByID(r.Context(), chi.URLParam(r, "id"))
				if err != nil || !txInvolves(tx, uid) {
					httpx.WriteDomainError(w, models.ErrNotFound)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, tx)
			})

			r.Get("/transactions/{id}/history", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				tx, err := d.TransferSvc.GetByID(r.Context(), chi.URLParam(r, "id"))
				if err != nil || !txInvolves(tx, uid) {
					httpx.WriteDomainError(w, models.ErrNotFound)
					return
				}
				evs, err := d.TransferSvc.History(r.Context(), tx.ID)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, evs)
			})

			// ---------- budgets ----------
			r.Post("/budgets", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				var req struct {
					Limit     decimal.Decimal `json:"limit"`
					StartDate string          `json:"start_date"`
					EndDate   string          `json:"end_date"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
					return
				}
				start, err1 := time.Parse(dateLayout, req.StartDate)
				end, err2 := time.Parse(dateLayout, req.EndDate)
				if err1 != nil || err2 != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "dates must be YYYY-MM-DD", nil)
					return
				}
				b, err := d.BudgetSvc.Create(r.Context(), uid, req.Limit, start, end)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, b)
			})

			r.Get("/budgets/current", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				b, err := d.BudgetSvc.Current(r.Context(), uid)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				remaining, err := d.BudgetSvc.Remaining(r.Context(), uid)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]any{
					"budget":    b,
					"remaining": remaining,
				})
			})

			r.Delete("/budgets/{id}", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				if err := d.BudgetSvc.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			// ---------- reports ----------
			r.Get("/reports/totals", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				from, err1 := time.Parse(dateLayout, r.URL.Query().Get("from"))
				to, err2 := time.Parse(dateLayout, r.URL.Query().Get("to"))
				if err1 != nil || err2 != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "from and to must be YYYY-MM-DD", nil)
					return
				}
				totals, err := d.ReportSvc.TotalsForRange(r.Context(), uid, from, to)
				if err != nil {
					httpx.WriteDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, totals)
			})
		})
	})

	return r
}

func txInvolves(tx models.Transaction, userID string) bool {
	if tx.SenderID != nil && *tx.SenderID == userID {
		return true
	}
	return tx.RecipientID != nil && *tx.RecipientID == userID
}

func fieldErrs(fields ...*validate.ErrField) validate.Errs {
	var errs validate.Errs
	for _, f := range fields {
		if f != nil {
			errs = append(errs, *f)
		}
	}
	return errs
}
