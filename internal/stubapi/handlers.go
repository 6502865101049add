package stubapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/MrEthical07/goCartes/jwt"
	"github.com/MrEthical07/goCartes/session"
	"github.com/gorilla/mux"
)

const (
	colSite     = "SITE DE RETRAIT"
	colLastName = "NOM"
	colFirst    = "PRENOMS"
	colDelivery = "DELIVRANCE"
	colID       = "ID"

	maxImportSize = 10 << 20
)

// editableByRole lists the columns each role may change in a batch update.
// Administrateur and Superviseur may change everything.
var editableByRole = map[string][]string{
	string(session.RoleChief):    {colDelivery, "CONTACT DE RETRAIT", "DATE DE DELIVRANCE", "RANGEMENT"},
	string(session.RoleOperator): {colDelivery, "CONTACT DE RETRAIT", "DATE DE DELIVRANCE"},
}

/*
====================================
AUTH
====================================
*/

type loginBody struct {
	Username string `json:"NomUtilisateur"`
	Password string `json:"MotDePasse"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Corps de requête invalide"))
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(body.Username)]
	s.mu.Unlock()
	if ok {
		ok, _ = verifyPassword(body.Password, acct.hash)
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Identifiants incorrects"})
		return
	}
	if acct.disabled {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Compte désactivé"})
		return
	}
	s.writeSession(w, acct.user, true)
}

func (s *Server) writeSession(w http.ResponseWriter, user session.User, withSuccess bool) {
	token, expiresIn, err := s.tokens.Issue(user.ID, user.Username, string(user.Role))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, message("Émission du token impossible"))
		return
	}
	s.mu.Lock()
	if s.expireIn > 0 {
		expiresIn = s.expireIn
	}
	s.mu.Unlock()

	reply := map[string]any{
		"token":       token,
		"utilisateur": user,
		"expiresIn":   expiresIn,
	}
	if withSuccess {
		reply["success"] = true
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ *jwt.Claims) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.Revoke(token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, claims *jwt.Claims) {
	user, ok := s.userOf(claims)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, message("Compte introuvable"))
		return
	}
	s.Revoke(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s.writeSession(w, user, false)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, claims *jwt.Claims) {
	user, ok := s.userOf(claims)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, message("Compte introuvable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"utilisateur": user})
}

type registerBody struct {
	FullName string       `json:"NomComplet"`
	Username string       `json:"NomUtilisateur"`
	Email    string       `json:"Email"`
	Agency   string       `json:"Agence"`
	Role     session.Role `json:"Role"`
	Password string       `json:"MotDePasse"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, claims *jwt.Claims) {
	if claims.Role != string(session.RoleAdministrator) {
		writeJSON(w, http.StatusForbidden, message("Réservé aux administrateurs"))
		return
	}
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, message("Nom d'utilisateur et mot de passe requis"))
		return
	}
	if !body.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, message("Rôle inconnu"))
		return
	}

	hash, err := hashPassword(body.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, message("Création du compte impossible"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(body.Username)
	if _, exists := s.accounts[key]; exists {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "Nom d'utilisateur déjà utilisé", "code": "DUPLICATE_USER"})
		return
	}
	user := session.User{
		ID:       len(s.accounts) + 1,
		FullName: body.FullName,
		Username: body.Username,
		Email:    body.Email,
		Agency:   body.Agency,
		Role:     body.Role,
	}
	s.accounts[key] = account{hash: hash, user: user}
	writeJSON(w, http.StatusCreated, map[string]any{"utilisateur": user})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"NomUtilisateur"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, message("Nom d'utilisateur requis"))
		return
	}
	// Unknown accounts get the same answer.
	writeJSON(w, http.StatusOK, message("Si le compte existe, un nouveau mot de passe a été envoyé"))
}

type profileBody struct {
	FullName        string `json:"NomComplet"`
	Email           string `json:"Email"`
	Agency          string `json:"Agence"`
	CurrentPassword string `json:"AncienMotDePasse"`
	NewPassword     string `json:"NouveauMotDePasse"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, claims *jwt.Claims) {
	var body profileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Corps de requête invalide"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(claims.Username)
	acct, ok := s.accounts[key]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, message("Compte introuvable"))
		return
	}
	if body.NewPassword != "" {
		if match, _ := verifyPassword(body.CurrentPassword, acct.hash); !match {
			writeJSON(w, http.StatusBadRequest, message("Mot de passe actuel incorrect"))
			return
		}
		hash, err := hashPassword(body.NewPassword)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, message("Mise à jour impossible"))
			return
		}
		acct.hash = hash
	}
	if body.FullName != "" {
		acct.user.FullName = body.FullName
	}
	if body.Email != "" {
		acct.user.Email = body.Email
	}
	if body.Agency != "" {
		acct.user.Agency = body.Agency
	}
	s.accounts[key] = acct
	writeJSON(w, http.StatusOK, map[string]any{"utilisateur": acct.user})
}

func (s *Server) userOf(claims *jwt.Claims) (session.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(claims.Username)]
	if !ok || acct.disabled {
		return session.User{}, false
	}
	return acct.user, true
}

/*
====================================
STATISTICS
====================================
*/

type siteStats struct {
	Site      string `json:"site"`
	Total     int    `json:"total"`
	Withdrawn int    `json:"retires"`
	Remaining int    `json:"restants"`
}

func (s *Server) computeLocked() (total, withdrawn int, sites []siteStats) {
	bySite := map[string]*siteStats{}
	for _, c := range s.cartes {
		total++
		site := stringField(c, colSite)
		if site == "" {
			site = "Non renseigné"
		}
		st, ok := bySite[site]
		if !ok {
			st = &siteStats{Site: site}
			bySite[site] = st
		}
		st.Total++
		if stringField(c, colDelivery) != "" {
			withdrawn++
			st.Withdrawn++
		}
	}
	for _, st := range bySite {
		st.Remaining = st.Total - st.Withdrawn
		sites = append(sites, *st)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Site < sites[j].Site })
	return total, withdrawn, sites
}

func (s *Server) handleGlobalStats(w http.ResponseWriter, _ *http.Request, _ *jwt.Claims) {
	s.mu.Lock()
	total, withdrawn, _ := s.computeLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"total": total, "retires": withdrawn, "restants": total - withdrawn})
}

func (s *Server) handleSiteStats(w http.ResponseWriter, _ *http.Request, _ *jwt.Claims) {
	s.mu.Lock()
	_, _, sites := s.computeLocked()
	s.mu.Unlock()
	if sites == nil {
		sites = []siteStats{}
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleStatsRefresh(w http.ResponseWriter, _ *http.Request, _ *jwt.Claims) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Statistiques recalculées"})
}

func (s *Server) handleTotalStats(w http.ResponseWriter, _ *http.Request, _ *jwt.Claims) {
	s.mu.Lock()
	total, withdrawn, sites := s.computeLocked()
	s.mu.Unlock()
	bySite := make(map[string]int, len(sites))
	for _, st := range sites {
		bySite[st.Site] = st.Total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":       total,
		"retires":     withdrawn,
		"disponibles": total - withdrawn,
		"parSite":     bySite,
	})
}

/*
====================================
CARTES
====================================
*/

func (s *Server) handleListCartes(w http.ResponseWriter, r *http.Request, _ *jwt.Claims) {
	s.mu.Lock()
	all := s.sortedLocked()
	s.mu.Unlock()

	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("limit") == "" {
		writeJSON(w, http.StatusOK, map[string]any{"cartes": all})
		return
	}
	writeJSON(w, http.StatusOK, paginate(all, atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("limit"), 100)))
}

func (s *Server) handleCreateCarte(w http.ResponseWriter, r *http.Request, _ *jwt.Claims) {
	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Corps de requête invalide"))
		return
	}
	if stringField(record, colLastName) == "" {
		writeJSON(w, http.StatusBadRequest, message("Le nom est obligatoire"))
		return
	}
	s.mu.Lock()
	id := s.insertLocked(record)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "message": "Carte créée"})
}

type batchBody struct {
	Cartes []map[string]any `json:"cartes"`
	Role   string           `json:"role"`
}

func (s *Server) handleBatchUpdate(w http.ResponseWriter, r *http.Request, claims *jwt.Claims) {
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, message("Corps de requête invalide"))
		return
	}
	if body.Role != claims.Role {
		writeJSON(w, http.StatusForbidden, message("Rôle incohérent"))
		return
	}
	allowed, restricted := editableByRole[body.Role]

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, in := range body.Cartes {
		id := int(numberField(in, colID))
		stored, ok := s.cartes[id]
		if !ok {
			continue
		}
		for k, v := range in {
			if k == colID {
				continue
			}
			if restricted && !contains(allowed, k) {
				continue
			}
			stored[k] = v
		}
		updated++
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

func (s *Server) handleDeleteCarte(w http.ResponseWriter, r *http.Request, claims *jwt.Claims) {
	if claims.Role != string(session.RoleAdministrator) && claims.Role != string(session.RoleSupervisor) {
		writeJSON(w, http.StatusForbidden, message("Suppression non autorisée"))
		return
	}
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	s.mu.Lock()
	_, ok := s.cartes[id]
	delete(s.cartes, id)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, message("Carte introuvable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// searchColumns maps query parameters to the columns they filter.
var searchColumns = map[string]string{
	"nom":           colLastName,
	"prenom":        colFirst,
	"contact":       "CONTACT",
	"siteRetrait":   colSite,
	"lieuNaissance": "LIEU NAISSANCE",
	"dateNaissance": "DATE DE NAISSANCE",
	"rangement":     "RANGEMENT",
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ *jwt.Claims) {
	q := r.URL.Query()
	s.mu.Lock()
	all := s.sortedLocked()
	s.mu.Unlock()

	var matched []map[string]any
	for _, c := range all {
		keep := true
		for param, col := range searchColumns {
			want := strings.ToLower(strings.TrimSpace(q.Get(param)))
			if want != "" && !strings.Contains(strings.ToLower(stringField(c, col)), want) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, c)
		}
	}
	writeJSON(w, http.StatusOK, paginate(matched, atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("limit"), 50)))
}

/*
====================================
IMPORT / EXPORT
====================================
*/

// handleImport reads the uploaded file as semicolon-separated text with a header
// row of column names. The stub does not decode real workbooks.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, claims *jwt.Claims) {
	if claims.Role == string(session.RoleOperator) {
		writeJSON(w, http.StatusForbidden, message("Import non autorisé"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, message("Aucun fichier reçu"))
		return
	}
	defer file.Close()

	rows, err := readRows(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, message("Fichier illisible: "+err.Error()))
		return
	}

	type rowError struct {
		Row     int    `json:"row"`
		Message string `json:"message"`
	}
	var imported, skipped int
	var rowErrors []rowError

	s.mu.Lock()
	for i, rec := range rows {
		if stringField(rec, colLastName) == "" {
			skipped++
			rowErrors = append(rowErrors, rowError{Row: i + 2, Message: "Nom manquant"})
			continue
		}
		s.insertLocked(rec)
		imported++
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("%d cartes importées", imported),
		"imported": imported,
		"updated":  0,
		"skipped":  skipped,
		"errors":   rowErrors,
	})
}

func readRows(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("fichier vide")
	}
	header := records[0]
	out := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(rec) && strings.TrimSpace(rec[i]) != "" {
				row[strings.TrimSpace(col)] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// templateHeader is the header row of the import workbook.
var templateHeader = []string{
	"LIEU D'ENROLEMENT", colSite, "RANGEMENT", colLastName, colFirst,
	"DATE DE NAISSANCE", "LIEU NAISSANCE", "CONTACT", colDelivery,
	"CONTACT DE RETRAIT", "DATE DE DELIVRANCE",
}

func (s *Server) handleTemplate(w http.ResponseWriter, _ *http.Request, _ *jwt.Claims) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="modele-import-cartes.xlsx"`)
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	_ = cw.Write(templateHeader)
	cw.Flush()
}

/*
====================================
HELPERS
====================================
*/

func (s *Server) insertLocked(record map[string]any) int {
	id := s.nextID
	s.nextID++
	stored := cloneRecord(record)
	stored[colID] = id
	s.cartes[id] = stored
	return id
}

func (s *Server) sortedLocked() []map[string]any {
	ids := make([]int, 0, len(s.cartes))
	for id := range s.cartes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(s.cartes[id]))
	}
	return out
}

func paginate(all []map[string]any, page, limit int) map[string]any {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pages := (total + limit - 1) / limit
	slice := all[start:end]
	if slice == nil {
		slice = []map[string]any{}
	}
	return map[string]any{
		"cartes":     slice,
		"total":      total,
		"page":       page,
		"totalPages": pages,
		"limit":      limit,
	}
}

func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func numberField(rec map[string]any, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
