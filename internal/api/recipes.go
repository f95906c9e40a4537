package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ovenlink/ovenlink/internal/recipes"
)

// handleListRecipes returns summaries of all loaded recipes.
func (s *Server) handleListRecipes(w http.ResponseWriter, _ *http.Request) {
	if s.recipes == nil {
		writeUnavailable(w, "recipe library is not configured")
		return
	}

	infos := s.recipes.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"recipes": infos,
		"count":   len(infos),
	})
}

// handleGetRecipe returns one full recipe.
func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	if s.recipes == nil {
		writeUnavailable(w, "recipe library is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	recipe, err := s.recipes.Get(id)
	if err != nil {
		if errors.Is(err, recipes.ErrRecipeNotFound) {
			writeNotFound(w, "recipe not found: "+id)
			return
		}
		writeInternalError(w, "failed to load recipe")
		return
	}

	writeJSON(w, http.StatusOK, recipe)
}
