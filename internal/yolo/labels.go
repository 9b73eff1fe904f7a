package yolo

import (
	"bufio"
	"os"
	"strings"

	"github.com/urbancanopy/treedetect-go/internal/errors"
)

// loadLabels reads a newline-delimited class label file. Blank lines and
// lines starting with '#' are skipped; order must match the model's class
// index order.
func loadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("yolo").
			Category(errors.CategoryLabelLoad).
			Context("label_path", path).
			Build()
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("yolo").
			Category(errors.CategoryLabelLoad).
			Context("label_path", path).
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label file %s contains no labels", path).
			Component("yolo").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	return labels, nil
}
