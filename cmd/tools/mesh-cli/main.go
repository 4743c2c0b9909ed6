package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/voxmesh/internal/auth"
	"github.com/annel0/voxmesh/internal/meshstore"
	"github.com/annel0/voxmesh/internal/vec"
)

const defaultDataPath = "data"

func main() {
	var (
		dataPath = flag.String("data", defaultDataPath, "Каталог BadgerDB с геометрией")
		command  = flag.String("cmd", "list", "Command: list, show, obj, delete, secret, token")
		rootArg  = flag.String("root", "0,0,0", "Корень чанка x,y,z")
		outPath  = flag.String("out", "", "Файл для obj (по умолчанию stdout)")
		facing   = flag.String("facing", "", "Только грани направления (+X, -Y, ...) для obj")
		operator = flag.String("operator", "admin", "Оператор в токене")
		tokenTTL = flag.Duration("ttl", 24*time.Hour, "Срок действия токена")
	)
	flag.Parse()

	// Команды без хранилища
	switch *command {
	case "secret":
		secret, err := auth.GenerateSecureSecret()
		if err != nil {
			log.Fatalf("❌ Secret failed: %v", err)
		}
		fmt.Println(secret)
		return
	case "token":
		token, err := issueToken(os.Getenv("VOXMESH_ADMIN_SECRET"), *operator, *tokenTTL)
		if err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		fmt.Println(token)
		return
	}

	store, err := meshstore.Open(*dataPath)
	if err != nil {
		log.Fatalf("❌ Failed to open store: %v", err)
	}
	defer store.Close()

	switch *command {
	case "list":
		if err := listChunks(store, os.Stdout); err != nil {
			log.Fatalf("❌ List failed: %v", err)
		}

	case "show", "obj", "delete":
		root, err := parseRoot(*rootArg)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}

		switch *command {
		case "show":
			err = showChunk(store, root, os.Stdout)
		case "obj":
			err = exportOBJ(store, root, *facing, *outPath)
		case "delete":
			err = store.Delete(root)
			if err == nil {
				fmt.Printf("🗑  Chunk %s deleted\n", root)
			}
		}
		if err != nil {
			log.Fatalf("❌ %s failed: %v", *command, err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: list, show, obj, delete, secret, token")
		os.Exit(1)
	}
}

// listChunks выводит все сохранённые чанки
func listChunks(store *meshstore.Store, w io.Writer) error {
	roots, err := store.Roots()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "📦 Chunks: %d\n", len(roots))
	for _, root := range roots {
		rec, err := store.Load(root)
		if err != nil {
			fmt.Fprintf(w, "  %s: %v\n", root, err)
			continue
		}
		fmt.Fprintf(w, "  %s size=%s surfaces=%d faces=%d triangles=%d\n",
			root, rec.Size, rec.Surfaces, rec.Faces, rec.Mesh.TriangleCount())
	}
	return nil
}

// showChunk выводит сводку одного чанка
func showChunk(store *meshstore.Store, root vec.Vec3, w io.Writer) error {
	rec, err := store.Load(root)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Chunk %s\n", rec.Root)
	fmt.Fprintf(w, "  Build:     %s\n", rec.BuildID)
	fmt.Fprintf(w, "  Built at:  %s\n", rec.BuiltAt.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "  Size:      %s\n", rec.Size)
	fmt.Fprintf(w, "  Surfaces:  %d\n", rec.Surfaces)
	fmt.Fprintf(w, "  Faces:     %d\n", rec.Faces)
	fmt.Fprintf(w, "  Vertices:  %d\n", rec.Mesh.VertexCount())
	fmt.Fprintf(w, "  Triangles: %d\n", rec.Mesh.TriangleCount())
	return nil
}

// exportOBJ пишет геометрию чанка в Wavefront OBJ; facing ограничивает направление граней
func exportOBJ(store *meshstore.Store, root vec.Vec3, facing, outPath string) error {
	rec, err := store.Load(root)
	if err != nil {
		return err
	}

	mesh := rec.Mesh
	name := fmt.Sprintf("chunk_%d_%d_%d", root.X, root.Y, root.Z)
	if facing != "" {
		d, err := vec.ParseDirection(facing)
		if err != nil {
			return err
		}
		if mesh, err = mesh.Facing(d); err != nil {
			return err
		}
		name += "_" + d.String()
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	return mesh.WriteOBJ(w, name)
}

// issueToken выпускает административный токен для /api/admin
func issueToken(secret, operator string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("VOXMESH_ADMIN_SECRET не задан")
	}
	issuer, err := auth.NewIssuerFromBase64(secret, ttl)
	if err != nil {
		return "", err
	}
	return issuer.Generate(operator, true)
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseRoot парсит корень вида "x,y,z"
func parseRoot(s string) (vec.Vec3, error) {
	parts := parseStringList(s)
	if len(parts) != 3 {
		return vec.Vec3{}, fmt.Errorf("invalid root %q: expected x,y,z", s)
	}

	var coords [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("invalid root %q: %v", s, err)
		}
		coords[i] = v
	}
	return vec.New(coords[0], coords[1], coords[2]), nil
}
