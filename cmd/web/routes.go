package main

import (
	"net/http"
	"strconv"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/httputil"
	"github.com/AdamBeresnev/duel-organizer/internal/middleware"
	"github.com/AdamBeresnev/duel-organizer/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type registerUserRequest struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Tag      string    `json:"tag"`
}

type renameRequest struct {
	Username string `json:"username"`
	Tag      string `json:"tag"`
}

type createTournamentRequest struct {
	Name                string           `json:"name"`
	TotalRounds         *int             `json:"totalRounds"`
	CollectionID        *uuid.UUID       `json:"collectionId"`
	SeriesID            *uuid.UUID       `json:"seriesId"`
	DeckMode            bracket.DeckMode `json:"deckMode"`
	AllowCustomCards    bool             `json:"allowCustomCards"`
	LockSnapshotOnStart bool             `json:"lockSnapshotOnStart"`
}

type deckRequest struct {
	DeckID uuid.UUID `json:"deckId"`
}

type tournamentSnapshotRequest struct {
	CollectionID  uuid.UUID  `json:"collectionId"`
	SeriesID      *uuid.UUID `json:"seriesId"`
	AssignedDecks bool       `json:"assignedDecks"`
}

type matchResultRequest struct {
	Team1Score int `json:"team1Score"`
	Team2Score int `json:"team2Score"`
}

type createSnapshotRequest struct {
	Custom           bool              `json:"custom"`
	SourceType       deck.SourceType   `json:"sourceType"`
	CollectionID     *uuid.UUID        `json:"collectionId"`
	ParentSnapshotID *uuid.UUID        `json:"parentSnapshotId"`
	SnapshotType     deck.SnapshotType `json:"snapshotType"`
	TournamentID     *uuid.UUID        `json:"tournamentId"`
	SeriesID         *uuid.UUID        `json:"seriesId"`
}

type createCollectionRequest struct {
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

type createDeckRequest struct {
	Name          string `json:"name"`
	MaxSelections *int   `json:"maxSelections"`
}

func newRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Called by the auth proxy when it first sees a user
	r.Post("/users", func(w http.ResponseWriter, r *http.Request) {
		var req registerUserRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, r, err)
			return
		}
		user, err := app.userService.RegisterUser(r.Context(), req.ID, req.Username, req.Tag)
		if err != nil {
			httputil.Error(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, user)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(app.users))

		r.Get("/users/me", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, middleware.GetAuthenticatedUser(r.Context()))
		})

		r.Patch("/users/me", func(w http.ResponseWriter, r *http.Request) {
			var req renameRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.Error(w, r, err)
				return
			}
			user, err := app.userService.Rename(r.Context(), callerID(r), req.Username, req.Tag)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, user)
		})

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				tournaments, err := app.tournaments.GetTournamentsForUser(r.Context(), callerID(r))
				if err != nil {
					httputil.Error(w, r, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournaments)
			})

			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var req createTournamentRequest
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.Error(w, r, err)
					return
				}
				tournament, err := app.tournaments.CreateTournament(r.Context(), callerID(r), service.CreateTournamentInput{
					Name:                req.Name,
					TotalRounds:         req.TotalRounds,
					CollectionID:        req.CollectionID,
					SeriesID:            req.SeriesID,
					DeckMode:            req.DeckMode,
					AllowCustomCards:    req.AllowCustomCards,
					LockSnapshotOnStart: req.LockSnapshotOnStart,
				})
				if err != nil {
					httputil.Error(w, r, err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, tournament)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					data, err := app.tournaments.GetTournamentData(r.Context(), id)
					if err != nil {
						httputil.Error(w, r, err)
						return
					}
					if data == nil {
						httputil.Error(w, r, apperr.NotFound("tournament %s not found", id))
						return
					}
					httputil.WriteJSON(w, http.StatusOK, data)
				})

				r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					standings, err := app.tournaments.GetStandings(r.Context(), id)
					if err != nil {
						httputil.Error(w, r, err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, standings)
				})

				r.Post("/participants", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					if err := app.tournaments.RegisterParticipant(r.Context(), id, callerID(r)); err != nil {
						httputil.Error(w, r, err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Put("/participants/{userID}/deck", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					userID, ok := uuidParam(w, r, "userID")
					if !ok {
						return
					}
					var req deckRequest
					if err := httputil.DecodeJSON(r, &req); err != nil {
						httputil.Error(w, r, err)
						return
					}
					if err := app.tournaments.SetParticipantDeck(r.Context(), callerID(r), id, userID, req.DeckID); err != nil {
						httputil.Error(w, r, err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Post("/snapshots", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					var req tournamentSnapshotRequest
					if err := httputil.DecodeJSON(r, &req); err != nil {
						httputil.Error(w, r, err)
						return
					}
					if err := app.tournaments.RequireOwner(r.Context(), callerID(r), id); err != nil {
						httputil.Error(w, r, err)
						return
					}

					snapshot := app.snapshots.CreateCollectionSnapshot
					if req.AssignedDecks {
						snapshot = app.snapshots.SnapshotAssignedDecks
					}
					result, err := snapshot(r.Context(), id, req.CollectionID, req.SeriesID)
					if err != nil {
						httputil.Error(w, r, err)
						return
					}
					httputil.WriteJSON(w, http.StatusCreated, result)
				})

				r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					result, err := app.tournaments.StartTournament(r.Context(), callerID(r), id)
					if err != nil {
						httputil.Error(w, r, err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, result)
				})

				r.Post("/advance", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					result, err := app.tournaments.AdvanceRound(r.Context(), callerID(r), id)
					if err != nil {
						httputil.Error(w, r, err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, result)
				})
			})
		})

		r.Get("/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			data, err := app.matches.GetMatchViewData(r.Context(), id)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, data)
		})

		r.Post("/matches/{id}/result", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var req matchResultRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.Error(w, r, err)
				return
			}
			result, err := app.tournaments.ReportMatchResult(r.Context(), callerID(r), id, req.Team1Score, req.Team2Score)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
		})

		r.Post("/collections", func(w http.ResponseWriter, r *http.Request) {
			var req createCollectionRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.Error(w, r, err)
				return
			}
			collection, err := app.collections.CreateCollection(r.Context(), callerID(r), req.Name, req.Custom)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, collection)
		})

		r.Post("/collections/{id}/decks", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var req createDeckRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.Error(w, r, err)
				return
			}
			d, err := app.collections.CreateDeck(r.Context(), callerID(r), id, boolQuery(r, "custom", false), req.Name, req.MaxSelections)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, d)
		})

		r.Post("/decks/{id}/cards", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var req service.AddDeckCardInput
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.Error(w, r, err)
				return
			}
			card, err := app.collections.AddDeckCard(r.Context(), callerID(r), id, boolQuery(r, "custom", false), req)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, card)
		})

		r.Post("/snapshots", func(w http.ResponseWriter, r *http.Request) {
			var req createSnapshotRequest
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.Error(w, r, err)
				return
			}
			result, err := app.snapshots.CreateSnapshot(r.Context(), service.CreateSnapshotInput{
				UserID:           callerID(r),
				Custom:           req.Custom,
				SourceType:       req.SourceType,
				CollectionID:     req.CollectionID,
				ParentSnapshotID: req.ParentSnapshotID,
				SnapshotType:     req.SnapshotType,
				TournamentID:     req.TournamentID,
				SeriesID:         req.SeriesID,
			})
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, result)
		})

		r.Get("/snapshots/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			view, err := app.snapshots.GetSnapshot(r.Context(), callerID(r), id, boolQuery(r, "custom", false))
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, view)
		})

		r.Post("/snapshots/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			result, err := app.cards.LockSnapshot(r.Context(), callerID(r), id)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
		})

		r.Patch("/snapshots/{id}/custom-cards/{cardID}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			cardID, ok := uuidParam(w, r, "cardID")
			if !ok {
				return
			}
			var changes deck.CardChanges
			if err := httputil.DecodeJSON(r, &changes); err != nil {
				httputil.Error(w, r, err)
				return
			}
			opts := service.SnapshotCardEditOptions{PropagateToSource: boolQuery(r, "propagateToSource", true)}
			result, err := app.cards.EditSnapshotCustomCard(r.Context(), callerID(r), id, cardID, changes, opts)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
		})

		r.Post("/custom-cards", func(w http.ResponseWriter, r *http.Request) {
			var fields deck.CardFields
			if err := httputil.DecodeJSON(r, &fields); err != nil {
				httputil.Error(w, r, err)
				return
			}
			card, err := app.cards.CreateCustomCard(r.Context(), callerID(r), fields)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, card)
		})

		r.Get("/custom-cards/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			card, err := app.cards.GetCustomCard(r.Context(), id)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, card)
		})

		r.Patch("/custom-cards/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var changes deck.CardChanges
			if err := httputil.DecodeJSON(r, &changes); err != nil {
				httputil.Error(w, r, err)
				return
			}
			result, err := app.cards.EditCustomCard(r.Context(), callerID(r), id, changes)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
		})

		r.Delete("/custom-cards/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			result, err := app.cards.DeleteCustomCard(r.Context(), callerID(r), id)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
		})
	})

	return r
}

// callerID is only called behind RequireAuth, which always sets the id.
func callerID(r *http.Request) uuid.UUID {
	id, _ := middleware.GetUserIDFromContext(r.Context())
	return id
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.BadRequest(w, "invalid "+name+" "+strconv.Quote(raw), err)
		return uuid.Nil, false
	}
	return id, true
}

func boolQuery(r *http.Request, name string, fallback bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}
