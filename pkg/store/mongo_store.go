package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"llmgateway/pkg/domain"
)

const (
	collChats     = "chats"
	collFiles     = "files"
	collSummaries = "file_summaries"
	collAdmins    = "admins"
	collDashboard = "dashboard"
)

type chatDoc struct {
	ID        string    `bson:"_id"`
	User      string    `bson:"user"`
	Role      string    `bson:"role"`
	Question  string    `bson:"question"`
	Answer    string    `bson:"answer"`
	Timestamp time.Time `bson:"timestamp"`
}

type fileDoc struct {
	ID               string    `bson:"_id"`
	User             string    `bson:"user"`
	OriginalFilename string    `bson:"original_filename"`
	StoredFilename   string    `bson:"stored_filename"`
	FilePath         string    `bson:"file_path"`
	ChatID           string    `bson:"chat_id,omitempty"`
	SizeBytes        int64     `bson:"size_bytes"`
	UploadedAt       time.Time `bson:"uploaded_at"`
}

type summaryDoc struct {
	ID               string            `bson:"_id"`
	User             string            `bson:"user"`
	Filename         string            `bson:"filename"`
	OriginalFilename string            `bson:"original_filename"`
	Action           string            `bson:"action"`
	Summary          string            `bson:"summary"`
	ProcessedBy      string            `bson:"processed_by"`
	Options          map[string]string `bson:"options,omitempty"`
	CreatedAt        time.Time         `bson:"created_at"`
}

type adminDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type entryDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Content     string    `bson:"content"`
	SubjectID   string    `bson:"subject_id,omitempty"`
	SubobjectID string    `bson:"subobject_id,omitempty"`
	FileIDs     []string  `bson:"file_ids"`
	CreatedBy   string    `bson:"created_by"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// MongoStore implements Store on MongoDB using the collection layout of the
// original deployment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = "llm_gateway"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collChats: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		collFiles: {
			{Keys: bson.D{{Key: "stored_filename", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "uploaded_at", Value: -1}}},
		},
		collSummaries: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "filename", Value: 1}}},
		},
		collAdmins: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collDashboard: {
			{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) insert(ctx context.Context, coll string, doc any) error {
	if _, err := s.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptionsBuilder) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (T, bool, error) {
	var doc T
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, false, nil
		}
		return doc, false, err
	}
	return doc, true, nil
}

func newestFirst(field string) *options.FindOptionsBuilder {
	return options.Find().SetSort(bson.D{{Key: field, Value: -1}})
}

func (s *MongoStore) InsertChatTurn(ctx context.Context, turn domain.ChatTurn) error {
	return s.insert(ctx, collChats, chatDoc{
		ID:        turn.ID,
		User:      turn.Principal,
		Role:      string(turn.Role),
		Question:  turn.Question,
		Answer:    turn.Answer,
		Timestamp: turn.CreatedAt,
	})
}

func (s *MongoStore) ListChatTurns(ctx context.Context, principal string, limit int) ([]domain.ChatTurn, error) {
	opts := newestFirst("timestamp")
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	docs, err := findAll[chatDoc](ctx, s.db.Collection(collChats), bson.M{"user": principal}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatTurn, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.ChatTurn{
			ID:        d.ID,
			Principal: d.User,
			Role:      domain.Role(d.Role),
			Question:  d.Question,
			Answer:    d.Answer,
			CreatedAt: d.Timestamp,
		})
	}
	return out, nil
}

func (s *MongoStore) InsertDocument(ctx context.Context, doc domain.StoredDocument) error {
	return s.insert(ctx, collFiles, fileDoc{
		ID:               doc.ID,
		User:             doc.Owner,
		OriginalFilename: doc.OriginalName,
		StoredFilename:   doc.StoredName,
		FilePath:         doc.Path,
		ChatID:           doc.ChatID,
		SizeBytes:        doc.SizeBytes,
		UploadedAt:       doc.UploadedAt,
	})
}

func (s *MongoStore) GetDocument(ctx context.Context, owner, storedName string) (domain.StoredDocument, bool, error) {
	doc, ok, err := findOne[fileDoc](ctx, s.db.Collection(collFiles), bson.M{"user": owner, "stored_filename": storedName})
	if err != nil || !ok {
		return domain.StoredDocument{}, ok, err
	}
	return documentFromDoc(doc), true, nil
}

func (s *MongoStore) ListDocuments(ctx context.Context, owner, chatID string) ([]domain.StoredDocument, error) {
	filter := bson.M{"user": owner}
	if chatID != "" {
		filter["chat_id"] = chatID
	}
	docs, err := findAll[fileDoc](ctx, s.db.Collection(collFiles), filter, newestFirst("uploaded_at"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentFromDoc(d))
	}
	return out, nil
}

func documentFromDoc(d fileDoc) domain.StoredDocument {
	return domain.StoredDocument{
		ID:           d.ID,
		Owner:        d.User,
		OriginalName: d.OriginalFilename,
		StoredName:   d.StoredFilename,
		Path:         d.FilePath,
		ChatID:       d.ChatID,
		SizeBytes:    d.SizeBytes,
		UploadedAt:   d.UploadedAt,
	}
}

func (s *MongoStore) InsertSummary(ctx context.Context, rec domain.SummaryRecord) error {
	return s.insert(ctx, collSummaries, summaryDoc{
		ID:               rec.ID,
		User:             rec.Owner,
		Filename:         rec.StoredName,
		OriginalFilename: rec.OriginalName,
		Action:           string(rec.Action),
		Summary:          rec.Summary,
		ProcessedBy:      rec.ProcessedBy,
		Options:          rec.Options,
		CreatedAt:        rec.CreatedAt,
	})
}

func (s *MongoStore) ListSummaries(ctx context.Context, owner, storedName string) ([]domain.SummaryRecord, error) {
	filter := bson.M{"user": owner}
	if storedName != "" {
		filter["filename"] = storedName
	}
	docs, err := findAll[summaryDoc](ctx, s.db.Collection(collSummaries), filter, newestFirst("created_at"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.SummaryRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.SummaryRecord{
			ID:           d.ID,
			Owner:        d.User,
			StoredName:   d.Filename,
			OriginalName: d.OriginalFilename,
			Action:       domain.Action(d.Action),
			Summary:      d.Summary,
			ProcessedBy:  d.ProcessedBy,
			Options:      d.Options,
			CreatedAt:    d.CreatedAt,
		})
	}
	return out, nil
}

func (s *MongoStore) InsertAdmin(ctx context.Context, admin domain.Admin) error {
	return s.insert(ctx, collAdmins, adminDoc{
		ID:        admin.ID,
		Username:  admin.Username,
		Password:  admin.PasswordHash,
		CreatedAt: admin.CreatedAt,
		UpdatedAt: admin.UpdatedAt,
	})
}

func (s *MongoStore) GetAdmin(ctx context.Context, username string) (domain.Admin, bool, error) {
	doc, ok, err := findOne[adminDoc](ctx, s.db.Collection(collAdmins), bson.M{"username": username})
	if err != nil || !ok {
		return domain.Admin{}, ok, err
	}
	return adminFromDoc(doc), true, nil
}

func (s *MongoStore) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	docs, err := findAll[adminDoc](ctx, s.db.Collection(collAdmins), bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Admin, 0, len(docs))
	for _, d := range docs {
		out = append(out, adminFromDoc(d))
	}
	return out, nil
}

func adminFromDoc(d adminDoc) domain.Admin {
	return domain.Admin{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (s *MongoStore) UpdateAdminPassword(ctx context.Context, username, passwordHash string, at time.Time) (bool, error) {
	res, err := s.db.Collection(collAdmins).UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"password": passwordHash, "updated_at": at.UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteAdmin(ctx context.Context, username string) (bool, error) {
	res, err := s.db.Collection(collAdmins).DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) InsertEntry(ctx context.Context, entry domain.DashboardEntry) error {
	ids := entry.FileIDs
	if ids == nil {
		ids = []string{}
	}
	return s.insert(ctx, collDashboard, entryDoc{
		ID:          entry.ID,
		Title:       entry.Title,
		Content:     entry.Content,
		SubjectID:   entry.SubjectID,
		SubobjectID: entry.SubobjectID,
		FileIDs:     ids,
		CreatedBy:   entry.CreatedBy,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	})
}

func (s *MongoStore) GetEntry(ctx context.Context, owner, id string) (domain.DashboardEntry, bool, error) {
	doc, ok, err := findOne[entryDoc](ctx, s.db.Collection(collDashboard), bson.M{"_id": id, "created_by": owner})
	if err != nil || !ok {
		return domain.DashboardEntry{}, ok, err
	}
	return entryFromDoc(doc), true, nil
}

func (s *MongoStore) ListEntries(ctx context.Context, owner string) ([]domain.DashboardEntry, error) {
	docs, err := findAll[entryDoc](ctx, s.db.Collection(collDashboard), bson.M{"created_by": owner}, newestFirst("created_at"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.DashboardEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, entryFromDoc(d))
	}
	return out, nil
}

func entryFromDoc(d entryDoc) domain.DashboardEntry {
	ids := d.FileIDs
	if ids == nil {
		ids = []string{}
	}
	return domain.DashboardEntry{
		ID:          d.ID,
		Title:       d.Title,
		Content:     d.Content,
		SubjectID:   d.SubjectID,
		SubobjectID: d.SubobjectID,
		FileIDs:     ids,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (s *MongoStore) UpdateEntry(ctx context.Context, entry domain.DashboardEntry) (bool, error) {
	res, err := s.db.Collection(collDashboard).UpdateOne(ctx,
		bson.M{"_id": entry.ID, "created_by": entry.CreatedBy},
		bson.M{"$set": bson.M{
			"title":        entry.Title,
			"content":      entry.Content,
			"subject_id":   entry.SubjectID,
			"subobject_id": entry.SubobjectID,
			"updated_at":   entry.UpdatedAt.UTC(),
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteEntry(ctx context.Context, owner, id string) (bool, error) {
	res, err := s.db.Collection(collDashboard).DeleteOne(ctx, bson.M{"_id": id, "created_by": owner})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) AttachFile(ctx context.Context, owner, id, storedName string) (bool, error) {
	res, err := s.db.Collection(collDashboard).UpdateOne(ctx,
		bson.M{"_id": id, "created_by": owner},
		bson.M{"$addToSet": bson.M{"file_ids": storedName}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}
